package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mikeboe/derma-research/pkg/clinic"
)

// ClinicStore is the patient, doctor and appointment surface used by the API.
type ClinicStore interface {
	RegisterPatient(ctx context.Context, reg clinic.Registration) (int, error)
	UpsertPatient(ctx context.Context, upd clinic.PatientUpdate) (clinic.UpsertResult, error)
	GetDetails(ctx context.Context, email string) (*clinic.Details, error)
	DoctorsByCity(ctx context.Context, city string) ([]clinic.Doctor, error)
	BookAppointment(ctx context.Context, req clinic.BookingRequest) (*clinic.Booking, error)
	BookedSlots(ctx context.Context, doctorID int, date string) ([]string, error)
	Appointments(ctx context.Context, email string) (*clinic.AppointmentList, error)
	CancelAppointment(ctx context.Context, appointmentID int) (string, error)
}

// DiagnosisService runs uploaded images through classification and research.
type DiagnosisService interface {
	Submit(ctx context.Context, req UploadRequest) (*Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)
	GetJobLogs(ctx context.Context, id uuid.UUID) ([]LogEntry, error)
}

const maxUploadBytes = 10 << 20

type Handler struct {
	Clinic    ClinicStore
	Diagnosis DiagnosisService
	Metrics   http.Handler
}

func NewHandler(store ClinicStore, svc DiagnosisService, metrics http.Handler) *Handler {
	return &Handler{Clinic: store, Diagnosis: svc, Metrics: metrics}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/register", h.register)
	r.POST("/updateUser", h.updateUser)
	r.GET("/getDetails", h.getDetails)
	r.POST("/upload", h.upload)
	r.GET("/diagnoses/:id", h.getDiagnosis)
	r.GET("/diagnoses/:id/logs", h.getDiagnosisLogs)
	r.GET("/getDoctors", h.getDoctors)
	r.POST("/bookAppointment", h.bookAppointment)
	r.GET("/getAvailableSlots", h.getAvailableSlots)
	r.GET("/getAppointments", h.getAppointments)
	r.DELETE("/cancelAppointment", h.cancelAppointment)
	if h.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.Metrics))
	}
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, clinic.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, clinic.ErrSlotTaken):
		return http.StatusConflict
	case errors.Is(err, clinic.ErrUserExists),
		errors.Is(err, clinic.ErrMissingFields),
		errors.Is(err, clinic.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func (h *Handler) register(c *gin.Context) {
	var req clinic.Registration
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pid, err := h.Clinic.RegisterPatient(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User registered successfully", "pid": pid})
}

func (h *Handler) updateUser(c *gin.Context) {
	var req clinic.PatientUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.Clinic.UpsertPatient(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	if res.Created {
		c.JSON(http.StatusOK, gin.H{"message": "New user created and details saved", "pid": res.PatientID})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User details updated successfully"})
}

func (h *Handler) getDetails(c *gin.Context) {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}

	details, err := h.Clinic.GetDetails(c.Request.Context(), email)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"details": details})
}

func (h *Handler) upload(c *gin.Context) {
	file, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	prescription, ok := c.GetPostForm("prescription")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prescription is required"})
		return
	}
	if file.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	job, err := h.Diagnosis.Submit(c.Request.Context(), UploadRequest{
		Image: clinic.Image{
			Name:        filepath.Base(filepath.Clean("/" + file.Filename)),
			ContentType: contentType,
			Data:        data,
		},
		Prescription: prescription,
		PatientEmail: strings.TrimSpace(c.PostForm("email")),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message":  "Image uploaded successfully",
		"image_id": job.ImageID,
		"job_id":   job.ID,
		"label":    job.Label,
		"status":   job.Status,
	})
}

func parseJobID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) getDiagnosis(c *gin.Context) {
	id, ok := parseJobID(c)
	if !ok {
		return
	}

	job, err := h.Diagnosis.GetJob(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *Handler) getDiagnosisLogs(c *gin.Context) {
	id, ok := parseJobID(c)
	if !ok {
		return
	}

	logs, err := h.Diagnosis.GetJobLogs(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if logs == nil {
		logs = []LogEntry{}
	}
	c.JSON(http.StatusOK, logs)
}

func (h *Handler) getDoctors(c *gin.Context) {
	doctors, err := h.Clinic.DoctorsByCity(c.Request.Context(), c.Query("city"))
	if err != nil {
		writeError(c, err)
		return
	}
	if doctors == nil {
		doctors = []clinic.Doctor{}
	}
	c.JSON(http.StatusOK, gin.H{"doctors": doctors})
}

func (h *Handler) bookAppointment(c *gin.Context) {
	var req clinic.BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	booking, err := h.Clinic.BookAppointment(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":        "Appointment booked successfully",
		"appointment_id": booking.AppointmentID,
		"details":        booking,
	})
}

func (h *Handler) getAvailableSlots(c *gin.Context) {
	doctorID, err := strconv.Atoi(c.Query("doctor_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "doctor_id must be an integer"})
		return
	}

	slots, err := h.Clinic.BookedSlots(c.Request.Context(), doctorID, c.Query("date"))
	if err != nil {
		writeError(c, err)
		return
	}
	if slots == nil {
		slots = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"booked_slots": slots})
}

func (h *Handler) getAppointments(c *gin.Context) {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}

	list, err := h.Clinic.Appointments(c.Request.Context(), email)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) cancelAppointment(c *gin.Context) {
	id, err := strconv.Atoi(c.Query("appointment_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "appointment_id must be an integer"})
		return
	}

	msg, err := h.Clinic.CancelAppointment(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}
