package models

import (
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	// MaxWebsiteURLs caps how many candidate destinations a user may keep.
	MaxWebsiteURLs = 2
)

type WebsiteURL struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	IsActive    bool   `json:"isActive"`
}

type User struct {
	ID          uint         `json:"id" gorm:"primaryKey"`
	Name        string       `json:"name" gorm:"size:100;not null"`
	Email       string       `json:"email" gorm:"size:255;uniqueIndex;not null"`
	Role        string       `json:"role" gorm:"size:16;not null"`
	IsActive    bool         `json:"isActive" gorm:"not null"`
	WebsiteURLs []WebsiteURL `json:"websiteURLs" gorm:"serializer:json;type:jsonb"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

type Category struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"size:100;not null"`
	NameKey   string    `json:"-" gorm:"size:100;uniqueIndex;not null"` // lower-cased name
	Color     string    `json:"color" gorm:"size:16"`
	IsActive  bool      `json:"isActive" gorm:"not null"`
	CreatedBy uint      `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type QRCode struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	CodeID       string     `json:"codeId" gorm:"size:32;uniqueIndex;not null"`
	WebsiteURL   string     `json:"websiteURL" gorm:"type:text;not null"`
	WebsiteTitle string     `json:"websiteTitle" gorm:"size:255;not null"`
	AssignedToID uint       `json:"assignedToId" gorm:"index;not null"`
	AssignedTo   *User      `json:"assignedTo,omitempty" gorm:"foreignKey:AssignedToID"`
	CategoryID   uint       `json:"categoryId" gorm:"index;not null"`
	Category     *Category  `json:"category,omitempty" gorm:"foreignKey:CategoryID"`
	IsActive     bool       `json:"isActive" gorm:"not null"`
	ScanCount    int64      `json:"scanCount" gorm:"not null;default:0"`
	LastScanned  *time.Time `json:"lastScanned"`
	ImageURL     string     `json:"imageURL" gorm:"size:255"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func (QRCode) TableName() string { return "qr_codes" }

type DeviceInfo struct {
	Browser        string `json:"browser" gorm:"size:64"`
	BrowserVersion string `json:"browserVersion" gorm:"size:64"`
	OS             string `json:"os" gorm:"size:64"`
	OSVersion      string `json:"osVersion" gorm:"size:64"`
	Device         string `json:"device" gorm:"size:64"`
	DeviceType     string `json:"deviceType" gorm:"size:16"`
	IsAndroid      bool   `json:"isAndroid"`
	IsIOS          bool   `json:"isIOS" gorm:"column:is_ios"`
	IsDesktop      bool   `json:"isDesktop"`
	IsMobile       bool   `json:"isMobile"`
	IsTablet       bool   `json:"isTablet"`
}

// Scan is append-only; one row per recorded scan or verification.
type Scan struct {
	ID         uint       `json:"id" gorm:"primaryKey"`
	CodeID     string     `json:"codeId" gorm:"size:32;index;not null"`
	QRCodeID   uint       `json:"qrCode" gorm:"column:qr_code_id;index;not null"`
	IPAddress  string     `json:"ipAddress" gorm:"size:45"`
	UserAgent  string     `json:"userAgent" gorm:"type:text"`
	DeviceInfo DeviceInfo `json:"deviceInfo" gorm:"embedded;embeddedPrefix:device_"`
	Timestamp  time.Time  `json:"timestamp" gorm:"index;not null"`
}

// QRTarget is the slice of a QRCode needed to record a scan and redirect.
type QRTarget struct {
	ID         uint   `json:"id"`
	CodeID     string `json:"codeId"`
	WebsiteURL string `json:"websiteURL"`
	IsActive   bool   `json:"isActive"`
}

func (q *QRCode) Target() QRTarget {
	return QRTarget{ID: q.ID, CodeID: q.CodeID, WebsiteURL: q.WebsiteURL, IsActive: q.IsActive}
}
