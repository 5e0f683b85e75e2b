package model

import "time"

// DateLayout is the format of every date exchanged with clients and
// dependencies.
const DateLayout = "2006-01-02"

type ReservationStatus string

const (
	StatusRented   ReservationStatus = "RENTED"
	StatusReturned ReservationStatus = "RETURNED"
	StatusExpired  ReservationStatus = "EXPIRED"
)

type BookCondition string

const (
	ConditionExcellent BookCondition = "EXCELLENT"
	ConditionGood      BookCondition = "GOOD"
	ConditionBad       BookCondition = "BAD"
)

// Identity is the caller on whose behalf dependencies are called.
type Identity struct {
	Username string
	Token    string
}

type Library struct {
	LibraryUID string `json:"libraryUid"`
	Name       string `json:"name"`
	Address    string `json:"address"`
	City       string `json:"city"`
}

type LibraryPage struct {
	Page          int       `json:"page"`
	PageSize      int       `json:"pageSize"`
	TotalElements int       `json:"totalElements"`
	Items         []Library `json:"items"`
}

type Book struct {
	BookUID string `json:"bookUid"`
	Name    string `json:"name"`
	Author  string `json:"author"`
	Genre   string `json:"genre"`
}

// LibraryBook is a book as listed in one library.
type LibraryBook struct {
	Book
	Condition      BookCondition `json:"condition"`
	AvailableCount int           `json:"availableCount"`
}

type LibraryBookPage struct {
	Page          int           `json:"page"`
	PageSize      int           `json:"pageSize"`
	TotalElements int           `json:"totalElements"`
	Items         []LibraryBook `json:"items"`
}

// Reservation is the record kept by the reservation service.
type Reservation struct {
	ReservationUID string            `json:"reservationUid"`
	Username       string            `json:"username,omitempty"`
	BookUID        string            `json:"bookUid"`
	LibraryUID     string            `json:"libraryUid"`
	Status         ReservationStatus `json:"status"`
	StartDate      string            `json:"startDate"`
	TillDate       string            `json:"tillDate"`
}

type UserRating struct {
	Stars int `json:"stars"`
}

// MaxRented is how many books a user with this rating may hold at once.
func (r UserRating) MaxRented() int {
	return (r.Stars + 9) / 10
}

type ConditionUpdate struct {
	BookUID      string        `json:"bookUid"`
	LibraryUID   string        `json:"libraryUid"`
	OldCondition BookCondition `json:"oldCondition"`
	NewCondition BookCondition `json:"newCondition"`
}

func (u ConditionUpdate) Changed() bool {
	return u.OldCondition != u.NewCondition
}

type TakeBookRequest struct {
	BookUID    string `json:"bookUid" validate:"required,uuid"`
	LibraryUID string `json:"libraryUid" validate:"required,uuid"`
	TillDate   string `json:"tillDate" validate:"required,datetime=2006-01-02"`
}

type ReturnBookRequest struct {
	Condition BookCondition `json:"condition" validate:"required,oneof=EXCELLENT GOOD BAD"`
	Date      string        `json:"date" validate:"required,datetime=2006-01-02"`
}

type TakeBookResponse struct {
	ReservationUID string            `json:"reservationUid"`
	Status         ReservationStatus `json:"status"`
	StartDate      string            `json:"startDate"`
	TillDate       string            `json:"tillDate"`
	Book           Book              `json:"book"`
	Library        Library           `json:"library"`
	Rating         UserRating        `json:"rating"`
}

type BookReservation struct {
	ReservationUID string            `json:"reservationUid"`
	Status         ReservationStatus `json:"status"`
	StartDate      string            `json:"startDate"`
	TillDate       string            `json:"tillDate"`
	Book           Book              `json:"book"`
	Library        Library           `json:"library"`
}

// FormatDate renders t in DateLayout.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
