package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/Domenick1991/flightbooking/internal/service/flights"
	"github.com/gin-gonic/gin"
)

var dateTimeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04"}

type FlightHandler struct {
	service flights.FlightUseCase
}

type addInventoryRequest struct {
	AirlineName       string              `json:"airlineName" binding:"required"`
	AirlineCode       string              `json:"airlineCode" binding:"required,min=2,max=10"`
	FromPlace         string              `json:"fromPlace" binding:"required"`
	ToPlace           string              `json:"toPlace" binding:"required"`
	DepartureDateTime string              `json:"departureDateTime" binding:"required"`
	ArrivalDateTime   string              `json:"arrivalDateTime" binding:"required"`
	Price             float64             `json:"price" binding:"required,gt=0"`
	AvailableSeats    int                 `json:"availableSeats" binding:"omitempty,gt=0"`
	Seats             []flights.SeatInput `json:"seats"`
}

type searchRequest struct {
	From string `json:"from" binding:"required"`
	To   string `json:"to" binding:"required"`
}

func NewFlightHandler(service flights.FlightUseCase) *FlightHandler {
	return &FlightHandler{service: service}
}

func (h *FlightHandler) Register(router *gin.RouterGroup) {
	router.POST("/airline/inventory/add", h.addInventory)
	router.POST("/search", h.search)
	router.GET("/get/:id", h.get)
	router.GET("/all", h.list)
	router.PUT("/update-seats/:flightId/:count", h.updateSeats)
	router.PUT("/rollback-seats/:flightId/:count", h.rollbackSeats)
	router.POST("/book-seats/:flightId", h.bookSeats)
	router.POST("/release-seats/:flightId", h.releaseSeats)
}

func (h *FlightHandler) addInventory(c *gin.Context) {
	var req addInventoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	departure, err := parseDateTime(req.DepartureDateTime)
	if err != nil {
		writeError(c, domain.NewValidationError("invalid departureDateTime %q", req.DepartureDateTime))
		return
	}
	arrival, err := parseDateTime(req.ArrivalDateTime)
	if err != nil {
		writeError(c, domain.NewValidationError("invalid arrivalDateTime %q", req.ArrivalDateTime))
		return
	}

	flight, err := h.service.AddInventory(c.Request.Context(), flights.AddInventoryInput{
		AirlineName:    req.AirlineName,
		AirlineCode:    req.AirlineCode,
		FromPlace:      req.FromPlace,
		ToPlace:        req.ToPlace,
		DepartureTime:  departure,
		ArrivalTime:    arrival,
		Price:          req.Price,
		AvailableSeats: req.AvailableSeats,
		Seats:          req.Seats,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, flight)
}

func (h *FlightHandler) search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	result, err := h.service.Search(c.Request.Context(), req.From, req.To)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *FlightHandler) list(c *gin.Context) {
	result, err := h.service.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *FlightHandler) get(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	flight, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, flight)
}

func (h *FlightHandler) updateSeats(c *gin.Context) {
	h.countOperation(c, h.service.ReserveSeats)
}

func (h *FlightHandler) rollbackSeats(c *gin.Context) {
	h.countOperation(c, h.service.ReleaseSeats)
}

func (h *FlightHandler) bookSeats(c *gin.Context) {
	h.seatMapOperation(c, h.service.ReserveSeats)
}

func (h *FlightHandler) releaseSeats(c *gin.Context) {
	h.seatMapOperation(c, h.service.ReleaseSeats)
}

type seatOperation func(ctx context.Context, flightID int64, req domain.SeatRequest) (string, error)

func (h *FlightHandler) countOperation(c *gin.Context, op seatOperation) {
	flightID, ok := int64Param(c, "flightId")
	if !ok {
		return
	}
	count, err := strconv.Atoi(c.Param("count"))
	if err != nil {
		writeError(c, domain.NewValidationError("invalid count %q", c.Param("count")))
		return
	}
	h.runSeatOperation(c, op, flightID, domain.SeatRequest{Count: count})
}

func (h *FlightHandler) seatMapOperation(c *gin.Context, op seatOperation) {
	flightID, ok := int64Param(c, "flightId")
	if !ok {
		return
	}
	var seatNumbers []string
	if err := c.ShouldBindJSON(&seatNumbers); err != nil {
		bindError(c, err)
		return
	}
	if len(seatNumbers) == 0 {
		writeError(c, domain.NewValidationError("at least one seat number is required"))
		return
	}
	h.runSeatOperation(c, op, flightID, domain.SeatRequest{SeatNumbers: seatNumbers})
}

func (h *FlightHandler) runSeatOperation(c *gin.Context, op seatOperation, flightID int64, req domain.SeatRequest) {
	msg, err := op(c.Request.Context(), flightID, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: msg})
}

func int64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		writeError(c, domain.NewValidationError("invalid %s %q", name, c.Param(name)))
		return 0, false
	}
	return v, true
}

func parseDateTime(v string) (time.Time, error) {
	var err error
	for _, layout := range dateTimeLayouts {
		var t time.Time
		if t, err = time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}
