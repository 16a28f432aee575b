package service

import (
	"time"

	"qrtrack/models"
)

type CategoryRef struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type UserRef struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// QRCodeView is the public projection returned by verify and scan-verify.
type QRCodeView struct {
	CodeID       string       `json:"codeId"`
	WebsiteURL   string       `json:"websiteURL"`
	WebsiteTitle string       `json:"websiteTitle"`
	Category     *CategoryRef `json:"category"`
	AssignedTo   *UserRef     `json:"assignedTo"`
	ScanCount    int64        `json:"scanCount"`
	CreatedAt    time.Time    `json:"createdAt"`
}

func NewQRCodeView(q *models.QRCode) *QRCodeView {
	v := &QRCodeView{
		CodeID:       q.CodeID,
		WebsiteURL:   q.WebsiteURL,
		WebsiteTitle: q.WebsiteTitle,
		ScanCount:    q.ScanCount,
		CreatedAt:    q.CreatedAt,
	}
	if q.Category != nil {
		v.Category = &CategoryRef{ID: q.Category.ID, Name: q.Category.Name, Color: q.Category.Color}
	} else if q.CategoryID != 0 {
		v.Category = &CategoryRef{ID: q.CategoryID}
	}
	if q.AssignedTo != nil {
		v.AssignedTo = &UserRef{ID: q.AssignedTo.ID, Name: q.AssignedTo.Name}
	} else if q.AssignedToID != 0 {
		v.AssignedTo = &UserRef{ID: q.AssignedToID}
	}
	return v
}
