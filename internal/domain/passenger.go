package domain

import (
	"strconv"
	"strings"
)

const (
	MinPassengerAge = 1
	MaxPassengerAge = 120
)

type Passenger struct {
	Name   string
	Gender string
	Age    int
	Raw    string
}

// ParsePassengers splits a "name:gender:age;name:gender:age" string. It only
// checks the shape of each entry; age bounds are checked by ValidateAge.
func ParsePassengers(details string) ([]Passenger, error) {
	details = strings.TrimSpace(details)
	if details == "" {
		return nil, NewValidationError("Passenger details are required")
	}

	entries := strings.Split(details, ";")
	passengers := make([]Passenger, 0, len(entries))
	for _, entry := range entries {
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, NewValidationError("Passenger details must follow NAME:GENDER:AGE format, got %q", entry)
		}
		name := strings.TrimSpace(parts[0])
		gender := strings.ToUpper(strings.TrimSpace(parts[1]))
		if name == "" {
			return nil, NewValidationError("Passenger name is required: %q", entry)
		}
		if gender != "M" && gender != "F" {
			return nil, NewValidationError("Passenger gender must be M or F: %q", entry)
		}
		age, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil {
			return nil, NewValidationError("Passenger age must be a number: %q", entry)
		}
		passengers = append(passengers, Passenger{Name: name, Gender: gender, Age: age, Raw: entry})
	}
	return passengers, nil
}

// ValidateAge rejects ages outside (0, 120].
func (p Passenger) ValidateAge() error {
	if p.Age < MinPassengerAge || p.Age > MaxPassengerAge {
		return NewValidationError("Invalid age for passenger: %s", p.Raw)
	}
	return nil
}
