package controllers

import (
    "net/http"

    "github.com/gin-gonic/gin"
    "gorm.io/gorm"

    "github.com/ydelhoste/emargement_backend/internal/models"
)

type FormationController struct {
    DB *gorm.DB
}

type createFormationRequest struct {
    Code string `json:"code" binding:"required"`
    Name string `json:"name" binding:"required"`
}

func (f *FormationController) Create(c *gin.Context) {
    var req createFormationRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    formation := models.Formation{Code: req.Code, Name: req.Name, Active: true}
    if err := f.DB.Create(&formation).Error; err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusCreated, formation)
}

func (f *FormationController) List(c *gin.Context) {
    var formations []models.Formation
    if err := f.DB.Order("code ASC").Find(&formations).Error; err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"data": formations})
}

func (f *FormationController) Get(c *gin.Context) {
    var formation models.Formation
    if err := f.DB.Where("id = ?", c.Param("id")).First(&formation).Error; err != nil {
        c.JSON(http.StatusNotFound, gin.H{"error": "formation not found"})
        return
    }
    c.JSON(http.StatusOK, formation)
}

type enrollRequest struct {
    UserID string `json:"user_id" binding:"required"`
}

// EnrollStudent adds a student to the formation roster. The composite unique
// index makes re-enrollment a 409, not a duplicate row.
func (f *FormationController) EnrollStudent(c *gin.Context) {
    formationID := c.Param("id")
    var req enrollRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }

    var formation models.Formation
    if err := f.DB.Where("id = ?", formationID).First(&formation).Error; err != nil {
        c.JSON(http.StatusNotFound, gin.H{"error": "formation not found"})
        return
    }
    var user models.User
    if err := f.DB.Where("user_id = ? AND role = ?", req.UserID, models.RoleStudent).First(&user).Error; err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": "user is not a known student"})
        return
    }

    enrollment := models.Enrollment{UserIDRef: req.UserID, FormationIDRef: formationID}
    if err := f.DB.Create(&enrollment).Error; err != nil {
        c.JSON(http.StatusConflict, gin.H{"error": "student already enrolled"})
        return
    }
    c.JSON(http.StatusCreated, gin.H{"message": "enrolled"})
}

func (f *FormationController) UnenrollStudent(c *gin.Context) {
    res := f.DB.Where("formation_id_ref = ? AND user_id_ref = ?", c.Param("id"), c.Param("user_id")).
        Delete(&models.Enrollment{})
    if res.Error != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": res.Error.Error()})
        return
    }
    if res.RowsAffected == 0 {
        c.JSON(http.StatusNotFound, gin.H{"error": "enrollment not found"})
        return
    }
    c.JSON(http.StatusOK, gin.H{"message": "unenrolled"})
}

func (f *FormationController) ListStudents(c *gin.Context) {
    var enrollments []models.Enrollment
    if err := f.DB.Where("formation_id_ref = ?", c.Param("id")).Find(&enrollments).Error; err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    ids := make([]string, 0, len(enrollments))
    for _, e := range enrollments {
        ids = append(ids, e.UserIDRef)
    }
    out := []gin.H{}
    if len(ids) > 0 {
        var users []models.User
        if err := f.DB.Where("user_id IN ?", ids).Find(&users).Error; err != nil {
            c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
            return
        }
        for _, u := range users {
            out = append(out, gin.H{
                "user_id":   u.UserID,
                "full_name": u.FullName,
                "email":     u.Email,
            })
        }
    }
    c.JSON(http.StatusOK, gin.H{"data": out})
}
