package service

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/eventreg/internal/config"
	eventdomain "github.com/smallbiznis/eventreg/internal/event/domain"
	orderdomain "github.com/smallbiznis/eventreg/internal/order/domain"
)

func normalizeRequest(req orderdomain.CheckoutRequest) orderdomain.CheckoutRequest {
	req.BuyerName = strings.TrimSpace(req.BuyerName)
	req.BuyerEmail = strings.ToLower(strings.TrimSpace(req.BuyerEmail))
	req.Provider = strings.ToLower(strings.TrimSpace(req.Provider))
	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if req.PaymentMethod == "" {
		req.PaymentMethod = req.Provider
	}
	req.VoucherCode = strings.TrimSpace(req.VoucherCode)

	items := make([]orderdomain.CheckoutItem, len(req.Items))
	for i, item := range req.Items {
		participants := make([]orderdomain.Participant, len(item.Participants))
		for j, p := range item.Participants {
			p.Name = strings.TrimSpace(p.Name)
			p.Email = strings.ToLower(strings.TrimSpace(p.Email))
			p.Phone = strings.TrimSpace(p.Phone)
			if p.Gender != nil {
				gender := strings.ToLower(strings.TrimSpace(*p.Gender))
				if gender == "" {
					p.Gender = nil
				} else {
					p.Gender = &gender
				}
			}
			participants[j] = p
		}
		item.Participants = participants
		items[i] = item
	}
	req.Items = items
	return req
}

func validateRequest(req orderdomain.CheckoutRequest, cfg config.CheckoutConfig, providerExists func(string) bool) error {
	verr := &orderdomain.ValidationError{}

	if req.EventID == uuid.Nil {
		verr.Add("event_id", "is required")
	}
	if req.BuyerName == "" {
		verr.Add("buyer_name", "is required")
	}
	if !validEmail(req.BuyerEmail) {
		verr.Add("buyer_email", "must be a valid email address")
	}
	if req.Provider == "" {
		verr.Add("provider", "is required")
	} else if !providerExists(req.Provider) {
		verr.Add("provider", "is not supported")
	}
	if len(req.Items) == 0 {
		verr.Add("items", "must contain at least one ticket")
	}

	for i, item := range req.Items {
		prefix := fmt.Sprintf("items[%d]", i)
		if item.TicketTypeID == uuid.Nil {
			verr.Add(prefix+".ticket_type_id", "is required")
		}
		if len(item.Participants) == 0 {
			verr.Add(prefix+".participants", "must contain at least one participant")
		}
		for j, p := range item.Participants {
			field := fmt.Sprintf("%s.participants[%d]", prefix, j)
			if p.Name == "" {
				verr.Add(field+".name", "is required")
			}
			if !validEmail(p.Email) {
				verr.Add(field+".email", "must be a valid email address")
			}
		}
	}

	if count := req.TicketCount(); cfg.MaxTicketsPerOrder > 0 && count > cfg.MaxTicketsPerOrder {
		verr.Add("items", fmt.Sprintf("at most %d tickets per order", cfg.MaxTicketsPerOrder))
	}
	return verr.Err()
}

// validateParticipants applies the age and gender restrictions of each tier.
// Age is measured on the event start date.
func validateParticipants(req orderdomain.CheckoutRequest, ticketTypes map[uuid.UUID]eventdomain.TicketType, startsAt time.Time) error {
	verr := &orderdomain.ValidationError{}
	for i, item := range req.Items {
		tt, ok := ticketTypes[item.TicketTypeID]
		if !ok {
			continue
		}
		for j, p := range item.Participants {
			field := fmt.Sprintf("items[%d].participants[%d]", i, j)
			if tt.Gender != nil && strings.TrimSpace(*tt.Gender) != "" {
				if p.Gender == nil || !strings.EqualFold(*p.Gender, strings.TrimSpace(*tt.Gender)) {
					verr.Add(field+".gender", fmt.Sprintf("ticket %q is restricted to %s", tt.Name, *tt.Gender))
				}
			}
			if tt.MinAge == nil && tt.MaxAge == nil {
				continue
			}
			if p.BirthDate == nil {
				verr.Add(field+".birth_date", "is required for this ticket")
				continue
			}
			age := ageAt(*p.BirthDate, startsAt)
			if tt.MinAge != nil && age < *tt.MinAge {
				verr.Add(field+".birth_date", fmt.Sprintf("participant must be at least %d", *tt.MinAge))
			}
			if tt.MaxAge != nil && age > *tt.MaxAge {
				verr.Add(field+".birth_date", fmt.Sprintf("participant must be at most %d", *tt.MaxAge))
			}
		}
	}
	return verr.Err()
}

func ageAt(birth time.Time, at time.Time) int {
	birth = birth.UTC()
	at = at.UTC()
	age := at.Year() - birth.Year()
	if at.Month() < birth.Month() || (at.Month() == birth.Month() && at.Day() < birth.Day()) {
		age--
	}
	return age
}

func validEmail(value string) bool {
	if value == "" {
		return false
	}
	addr, err := mail.ParseAddress(value)
	return err == nil && addr.Address == value
}
