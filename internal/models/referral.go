package models

import "time"

// ReferralLevel is the school level a referred student belongs to.
type ReferralLevel string

const (
	LevelElementary ReferralLevel = "Elementary"
	LevelJuniorHigh ReferralLevel = "JHS"
	LevelSeniorHigh ReferralLevel = "SHS"
)

// ReferralSeverity grades how urgent a referral is.
type ReferralSeverity string

const (
	SeverityLow    ReferralSeverity = "Low"
	SeverityMedium ReferralSeverity = "Medium"
	SeverityHigh   ReferralSeverity = "High"
)

// ReferralStatus tracks a referral through the counseling workflow.
// Complete is terminal; the dashboards stop offering edits once a
// referral reaches it.
type ReferralStatus string

const (
	StatusPending         ReferralStatus = "Pending"
	StatusUnderReview     ReferralStatus = "Under Review"
	StatusForConsultation ReferralStatus = "For Consultation"
	StatusComplete        ReferralStatus = "Complete"
)

// NameDisclosure captures how an anonymous submitter wanted to be named.
type NameDisclosure string

const (
	DisclosureRealName  NameDisclosure = "realName"
	DisclosureAnonymous NameDisclosure = "anonymous"
	DisclosurePreferNot NameDisclosure = "preferNot"
)

// Referral is a student welfare concern routed for staff review.
// Level, grade and created_by are nullable because student self-reports
// arrive without them; staff submissions must carry all three.
type Referral struct {
	ID             string           `db:"id" json:"id"`
	ReferralCode   string           `db:"referral_code" json:"referralCode"`
	StudentName    string           `db:"student_name" json:"studentName"`
	StudentID      *string          `db:"student_id" json:"studentId,omitempty"`
	Level          *ReferralLevel   `db:"level" json:"level,omitempty"`
	Grade          *string          `db:"grade" json:"grade,omitempty"`
	ReferralDate   time.Time        `db:"referral_date" json:"referralDate"`
	Reason         string           `db:"reason" json:"reason"`
	Description    string           `db:"description" json:"description"`
	Severity       ReferralSeverity `db:"severity" json:"severity"`
	Status         ReferralStatus   `db:"status" json:"status"`
	Category       *string          `db:"category" json:"category,omitempty"`
	Notes          string           `db:"notes" json:"notes"`
	ReferredBy     *string          `db:"referred_by" json:"referredBy,omitempty"`
	CreatedBy      *string          `db:"created_by" json:"createdBy,omitempty"`
	IsAnonymous    bool             `db:"is_anonymous" json:"isAnonymous"`
	NameDisclosure *NameDisclosure  `db:"name_disclosure" json:"nameDisclosure,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updatedAt"`
}

// ReferralDetail joins creator display info onto a referral for reads.
type ReferralDetail struct {
	Referral
	CreatedByName *string   `db:"created_by_name" json:"createdByName,omitempty"`
	CreatedByRole *UserRole `db:"created_by_role" json:"createdByRole,omitempty"`
}

// ReferralFilter captures list filtering criteria. Empty fields are
// ignored; Search matches student names case-insensitively.
type ReferralFilter struct {
	Search    string
	Level     string
	Severity  string
	Status    string
	Grade     string
	CreatedBy string
	Limit     int
}

// LevelBreakdown mirrors the byLevel block of the stats payload.
type LevelBreakdown struct {
	Elementary int `json:"elementary"`
	JuniorHigh int `json:"juniorHigh"`
	SeniorHigh int `json:"seniorHigh"`
}

// StatusBreakdown mirrors the byStatus block of the stats payload.
type StatusBreakdown struct {
	Pending         int `json:"pending"`
	UnderReview     int `json:"underReview"`
	ForConsultation int `json:"forConsultation"`
	Complete        int `json:"complete"`
}

// SeverityBreakdown mirrors the bySeverity block of the stats payload.
type SeverityBreakdown struct {
	Low    int `json:"low"`
	Medium int `json:"medium"`
	High   int `json:"high"`
}

// ReferralStats aggregates counts for the admin dashboard.
type ReferralStats struct {
	Total      int               `json:"total"`
	ByLevel    LevelBreakdown    `json:"byLevel"`
	ByStatus   StatusBreakdown   `json:"byStatus"`
	BySeverity SeverityBreakdown `json:"bySeverity"`
}
