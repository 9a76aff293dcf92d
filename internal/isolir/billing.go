package isolir

import (
	"context"
	"fmt"
	"time"

	"github.com/araddon/dateparse"
	"github.com/feedad/kilusi-bill-sub000/internal/domain"
	"github.com/guonaihong/gout"
)

// OverdueCustomer is one entry of the overdue feed from the billing system.
// Billing arithmetic happens there; this layer only consumes the facts.
type OverdueCustomer struct {
	CustomerId  int64
	Username    string
	DaysPastDue int
	DueDate     time.Time
}

// CustomerInfo is the billing system's view of a customer
type CustomerInfo struct {
	CustomerId int64
	Username   string
	PackageId  int64
	Status     string
}

// BillingProvider is the external billing collaborator surface the engine
// drives. Extra lookups (customer lists, package detail) live on the concrete
// HTTP provider only.
type BillingProvider interface {
	GetOverdueCustomers(ctx context.Context) ([]OverdueCustomer, error)
	UpdateCustomerIsolirStatus(ctx context.Context, customerId int64, status string) error
	SwitchCustomerPackage(ctx context.Context, customerId, packageId int64) error
	RestorePreviousPackage(ctx context.Context, customerId int64) error
}

// NullBillingProvider serves deployments without a billing integration;
// only date-scheduled isolation runs there.
type NullBillingProvider struct{}

func (NullBillingProvider) GetOverdueCustomers(ctx context.Context) ([]OverdueCustomer, error) {
	return nil, nil
}

func (NullBillingProvider) UpdateCustomerIsolirStatus(ctx context.Context, customerId int64, status string) error {
	return nil
}

func (NullBillingProvider) SwitchCustomerPackage(ctx context.Context, customerId, packageId int64) error {
	return nil
}

func (NullBillingProvider) RestorePreviousPackage(ctx context.Context, customerId int64) error {
	return nil
}

// HTTPBillingProvider talks to the billing service REST API
type HTTPBillingProvider struct {
	baseURL string
	apiKey  string
	timeout time.Duration
}

func NewHTTPBillingProvider(baseURL, apiKey string) *HTTPBillingProvider {
	return &HTTPBillingProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		timeout: 10 * time.Second,
	}
}

type overdueCustomerPayload struct {
	CustomerId  int64  `json:"customer_id,string"`
	Username    string `json:"username"`
	DaysPastDue int    `json:"days_past_due"`
	DueDate     string `json:"due_date"`
}

type customerPayload struct {
	CustomerId int64  `json:"customer_id,string"`
	Username   string `json:"username"`
	PackageId  int64  `json:"package_id,string"`
	Status     string `json:"status"`
}

type packagePayload struct {
	Id           int64   `json:"id,string"`
	Name         string  `json:"name"`
	PppoeProfile string  `json:"pppoe_profile"`
	GroupName    string  `json:"group_name"`
	RateLimit    string  `json:"rate_limit"`
	Price        float64 `json:"price"`
}

func (p *HTTPBillingProvider) GetOverdueCustomers(ctx context.Context) ([]OverdueCustomer, error) {
	var payload struct {
		Data []overdueCustomerPayload `json:"data"`
	}
	err := gout.GET(p.baseURL + "/api/customers/overdue").
		WithContext(ctx).
		SetHeader(gout.H{"Authorization": "Bearer " + p.apiKey}).
		SetTimeout(p.timeout).
		BindJSON(&payload).
		Do()
	if err != nil {
		return nil, fmt.Errorf("billing overdue feed: %w", err)
	}

	customers := make([]OverdueCustomer, 0, len(payload.Data))
	for _, item := range payload.Data {
		c := OverdueCustomer{
			CustomerId:  item.CustomerId,
			Username:    item.Username,
			DaysPastDue: item.DaysPastDue,
		}
		// billing emits dates in whatever locale format it was configured
		// with; parse leniently
		if item.DueDate != "" {
			if due, perr := dateparse.ParseAny(item.DueDate); perr == nil {
				c.DueDate = due
			}
		}
		customers = append(customers, c)
	}
	return customers, nil
}

func (p *HTTPBillingProvider) GetAllCustomers(ctx context.Context) ([]CustomerInfo, error) {
	var payload struct {
		Data []customerPayload `json:"data"`
	}
	err := gout.GET(p.baseURL + "/api/customers").
		WithContext(ctx).
		SetHeader(gout.H{"Authorization": "Bearer " + p.apiKey}).
		SetTimeout(p.timeout).
		BindJSON(&payload).
		Do()
	if err != nil {
		return nil, fmt.Errorf("billing customer list: %w", err)
	}

	customers := make([]CustomerInfo, 0, len(payload.Data))
	for _, item := range payload.Data {
		customers = append(customers, CustomerInfo{
			CustomerId: item.CustomerId,
			Username:   item.Username,
			PackageId:  item.PackageId,
			Status:     item.Status,
		})
	}
	return customers, nil
}

func (p *HTTPBillingProvider) UpdateCustomerIsolirStatus(ctx context.Context, customerId int64, status string) error {
	err := gout.PUT(fmt.Sprintf("%s/api/customers/%d/isolir-status", p.baseURL, customerId)).
		WithContext(ctx).
		SetHeader(gout.H{"Authorization": "Bearer " + p.apiKey}).
		SetTimeout(p.timeout).
		SetJSON(gout.H{"status": status}).
		Do()
	if err != nil {
		return fmt.Errorf("billing isolir status update: %w", err)
	}
	return nil
}

func (p *HTTPBillingProvider) SwitchCustomerPackage(ctx context.Context, customerId, packageId int64) error {
	err := gout.PUT(fmt.Sprintf("%s/api/customers/%d/package", p.baseURL, customerId)).
		WithContext(ctx).
		SetHeader(gout.H{"Authorization": "Bearer " + p.apiKey}).
		SetTimeout(p.timeout).
		SetJSON(gout.H{"package_id": packageId, "remember_previous": true}).
		Do()
	if err != nil {
		return fmt.Errorf("billing package switch: %w", err)
	}
	return nil
}

func (p *HTTPBillingProvider) RestorePreviousPackage(ctx context.Context, customerId int64) error {
	err := gout.POST(fmt.Sprintf("%s/api/customers/%d/package/restore", p.baseURL, customerId)).
		WithContext(ctx).
		SetHeader(gout.H{"Authorization": "Bearer " + p.apiKey}).
		SetTimeout(p.timeout).
		Do()
	if err != nil {
		return fmt.Errorf("billing package restore: %w", err)
	}
	return nil
}

func (p *HTTPBillingProvider) GetPackageById(ctx context.Context, packageId int64) (*domain.Package, error) {
	var payload struct {
		Data packagePayload `json:"data"`
	}
	err := gout.GET(fmt.Sprintf("%s/api/packages/%d", p.baseURL, packageId)).
		WithContext(ctx).
		SetHeader(gout.H{"Authorization": "Bearer " + p.apiKey}).
		SetTimeout(p.timeout).
		BindJSON(&payload).
		Do()
	if err != nil {
		return nil, fmt.Errorf("billing package lookup: %w", err)
	}
	return &domain.Package{
		ID:           payload.Data.Id,
		Name:         payload.Data.Name,
		PppoeProfile: payload.Data.PppoeProfile,
		GroupName:    payload.Data.GroupName,
		RateLimit:    payload.Data.RateLimit,
		Price:        payload.Data.Price,
	}, nil
}
