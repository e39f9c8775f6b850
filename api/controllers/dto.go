package controllers

import (
	"time"

	"github.com/google/uuid"

	"github.com/campusdesk/campusdesk-backend/internal/licenses"
	"github.com/campusdesk/campusdesk-backend/pkg/db/models"
	"github.com/campusdesk/campusdesk-backend/pkg/enums"
)

type licenseResponse struct {
	ID                     uuid.UUID           `json:"id"`
	UserID                 uuid.UUID           `json:"user_id"`
	LicenseTierID          *uuid.UUID          `json:"license_tier_id,omitempty"`
	ExternalSubscriptionID *string             `json:"external_subscription_id,omitempty"`
	ExternalPriceID        *string             `json:"external_price_id,omitempty"`
	PlanName               string              `json:"plan_name"`
	ProductName            string              `json:"product_name"`
	Status                 enums.LicenseStatus `json:"status"`
	IsTrial                bool                `json:"is_trial"`
	IsCancelled            bool                `json:"is_cancelled"`
	IsSuspended            bool                `json:"is_suspended"`
	StartDate              time.Time           `json:"start_date"`
	ExpiryDate             time.Time           `json:"expiry_date"`
	CancelAt               *time.Time          `json:"cancel_at,omitempty"`
	ValidityInDays         int                 `json:"validity_in_days"`
	ActualPaidPrice        string              `json:"actual_paid_price"`
	Currency               string              `json:"currency"`
	DiscountPercentage     string              `json:"discount_percentage"`
	CreatedAt              time.Time           `json:"created_at"`
	UpdatedAt              time.Time           `json:"updated_at"`
}

func licenseResponseFromModel(m *models.UserLicenseDetail) *licenseResponse {
	if m == nil {
		return nil
	}
	return &licenseResponse{
		ID:                     m.ID,
		UserID:                 m.UserID,
		LicenseTierID:          m.LicenseTierID,
		ExternalSubscriptionID: m.ExternalSubscriptionID,
		ExternalPriceID:        m.ExternalPriceID,
		PlanName:               m.PlanName,
		ProductName:            m.ProductName,
		Status:                 m.Status,
		IsTrial:                m.IsTrial(),
		IsCancelled:            m.IsCancelled,
		IsSuspended:            m.IsSuspended,
		StartDate:              m.StartDate,
		ExpiryDate:             m.ExpiryDate,
		CancelAt:               m.CancelAt,
		ValidityInDays:         m.ValidityInDays,
		ActualPaidPrice:        m.ActualPaidPrice.StringFixed(2),
		Currency:               m.Currency,
		DiscountPercentage:     m.DiscountPercentage.StringFixed(2),
		CreatedAt:              m.CreatedAt,
		UpdatedAt:              m.UpdatedAt,
	}
}

type resolutionResponse struct {
	State    licenses.State   `json:"state"`
	Entitled bool             `json:"entitled"`
	License  *licenseResponse `json:"license"`
}

func resolutionResponseFrom(res *licenses.Resolution) resolutionResponse {
	if res == nil {
		return resolutionResponse{State: licenses.StateNoLicense}
	}
	return resolutionResponse{
		State:    res.State,
		Entitled: res.State.Entitled(),
		License:  licenseResponseFromModel(res.License),
	}
}

type prorationResponse struct {
	RemainingDays  int    `json:"remaining_days"`
	Credit         string `json:"credit"`
	ExtraDays      int    `json:"extra_days"`
	ValidityInDays int    `json:"validity_in_days"`
}

func prorationResponseFrom(p licenses.Proration) prorationResponse {
	return prorationResponse{
		RemainingDays:  p.RemainingDays,
		Credit:         p.Credit.StringFixed(2),
		ExtraDays:      p.ExtraDays,
		ValidityInDays: p.ValidityInDays,
	}
}

type tierResponse struct {
	ID              uuid.UUID         `json:"id"`
	Title           string            `json:"title"`
	Description     *string           `json:"description,omitempty"`
	Amount          string            `json:"amount"`
	Currency        string            `json:"currency"`
	ValidityInDays  int               `json:"validity_in_days"`
	ExternalPriceID *string           `json:"external_price_id,omitempty"`
	LicensePlan     enums.LicensePlan `json:"license_plan"`
	IsActive        bool              `json:"is_active"`
}

func tierResponseFromModel(m *models.LicenseTier) *tierResponse {
	if m == nil {
		return nil
	}
	return &tierResponse{
		ID:              m.ID,
		Title:           m.Title,
		Description:     m.Description,
		Amount:          m.Amount.StringFixed(2),
		Currency:        m.Currency,
		ValidityInDays:  m.ValidityInDays,
		ExternalPriceID: m.ExternalPriceID,
		LicensePlan:     m.LicensePlan,
		IsActive:        m.IsActive,
	}
}

type featureResponse struct {
	ID          uuid.UUID  `json:"id"`
	Code        string     `json:"code"`
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	IsCountable bool       `json:"is_countable"`
	ActiveFrom  *time.Time `json:"active_from,omitempty"`
	ActiveUntil *time.Time `json:"active_until,omitempty"`
}

func featureResponseFromModel(m *models.Feature) *featureResponse {
	if m == nil {
		return nil
	}
	return &featureResponse{
		ID:          m.ID,
		Code:        m.Code,
		Title:       m.Title,
		Description: m.Description,
		IsCountable: m.IsCountable,
		ActiveFrom:  m.ActiveFrom,
		ActiveUntil: m.ActiveUntil,
	}
}
