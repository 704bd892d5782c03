package api

import (
	"net/http"
	"time"

	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/Domenick1991/flightbooking/internal/service/booking"
	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	service  booking.BookingUseCase
	location *time.Location
}

type bookRequest struct {
	Email            string   `json:"email" binding:"required,email"`
	Seats            int      `json:"seats" binding:"required,min=1"`
	SeatNumbers      []string `json:"seatNumbers"`
	PassengerDetails string   `json:"passengerDetails" binding:"required"`
	Amount           float64  `json:"amount" binding:"omitempty,gt=0"`
	JourneyDate      string   `json:"journeyDate" binding:"required"`
}

// NewBookingHandler parses journey dates in loc.
func NewBookingHandler(service booking.BookingUseCase, loc *time.Location) *BookingHandler {
	if loc == nil {
		loc = time.Local
	}
	return &BookingHandler{service: service, location: loc}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("/:flightId", h.book)
	router.GET("/history/:email", h.history)
	router.GET("/ticket/:pnr", h.ticket)
	router.GET("/ticket/:pnr/download", h.download)
	router.DELETE("/cancel/:pnr", h.cancel)
}

func (h *BookingHandler) book(c *gin.Context) {
	flightID, ok := int64Param(c, "flightId")
	if !ok {
		return
	}

	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	journey, err := time.ParseInLocation(domain.JourneyDateLayout, req.JourneyDate, h.location)
	if err != nil {
		writeError(c, domain.NewValidationError("journeyDate must use the YYYY-MM-DD format"))
		return
	}

	created, err := h.service.Book(c.Request.Context(), booking.BookInput{
		FlightID:         flightID,
		Email:            req.Email,
		Seats:            req.Seats,
		SeatNumbers:      req.SeatNumbers,
		PassengerDetails: req.PassengerDetails,
		Amount:           req.Amount,
		JourneyDate:      &journey,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *BookingHandler) history(c *gin.Context) {
	bookings, err := h.service.History(c.Request.Context(), c.Param("email"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bookings)
}

// ticket returns the stored payload byte for byte.
func (h *BookingHandler) ticket(c *gin.Context) {
	payload, err := h.service.Ticket(c.Request.Context(), c.Param("pnr"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(payload))
}

func (h *BookingHandler) download(c *gin.Context) {
	view, err := h.service.DownloadTicket(c.Request.Context(), c.Param("pnr"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+view.PNR+`.json"`)
	c.JSON(http.StatusOK, view)
}

func (h *BookingHandler) cancel(c *gin.Context) {
	result, err := h.service.Cancel(c.Request.Context(), c.Param("pnr"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
