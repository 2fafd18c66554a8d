package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

const orderNumberEntropyLen = 8

// NewOrderNumber formats PREFIX-YYMMDD-XXXXXXXX using the random tail of a
// ULID. Collisions are possible and must be checked by the caller.
func NewOrderNumber(prefix string, at time.Time) string {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = "ORD"
	}
	id := ulid.Make().String()
	return prefix + "-" + at.UTC().Format("060102") + "-" + id[len(id)-orderNumberEntropyLen:]
}

func registrationNumber(orderNumber string, index int) string {
	return fmt.Sprintf("%s-%02d", orderNumber, index)
}
