// Package mortgage shapes fixed-rate mortgage math into display-ready
// records. It is the one pure shaper — no upstream data source — and backs
// the plain (widget-less) mortgage-payment tool.
package mortgage

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/natfields/skybridge/internal/shaper"
)

// scheduleRows caps how many amortization rows are returned; the full
// schedule for a 30-year loan is 360 rows of noise in a chat surface.
const scheduleRows = 12

// Args are the mortgage-payment tool arguments.
type Args struct {
	// Principal is the loan amount.
	Principal float64 `json:"principal"`

	// AnnualRatePercent is the nominal annual interest rate, e.g. 5.25.
	AnnualRatePercent float64 `json:"annual_rate_percent"`

	// TermYears is the loan term in whole years.
	TermYears int `json:"term_years"`
}

// Validate checks argument ranges beyond what the JSON schema expresses.
func (a Args) Validate() error {
	if a.Principal <= 0 {
		return fmt.Errorf("mortgage: principal must be positive")
	}
	if a.AnnualRatePercent < 0 || a.AnnualRatePercent > 100 {
		return fmt.Errorf("mortgage: annual_rate_percent must be in [0, 100]")
	}
	if a.TermYears <= 0 || a.TermYears > 50 {
		return fmt.Errorf("mortgage: term_years must be in [1, 50]")
	}
	return nil
}

// row is one month of the amortization schedule.
type row struct {
	Month     int     `json:"month"`
	Payment   float64 `json:"payment"`
	Principal float64 `json:"principal"`
	Interest  float64 `json:"interest"`
	Balance   float64 `json:"balance"`
}

// Shape computes the monthly payment and the head of the amortization
// schedule. It is a [shaper.Func].
func Shape(_ context.Context, raw json.RawMessage) shaper.Result {
	var args Args
	if err := json.Unmarshal(raw, &args); err != nil {
		return shaper.Fail("invalid mortgage arguments: "+err.Error(), nil)
	}
	if err := args.Validate(); err != nil {
		return shaper.FromError(err, nil)
	}

	months := args.TermYears * 12
	monthlyRate := args.AnnualRatePercent / 100 / 12

	var payment float64
	if monthlyRate == 0 {
		payment = args.Principal / float64(months)
	} else {
		factor := math.Pow(1+monthlyRate, float64(months))
		payment = args.Principal * monthlyRate * factor / (factor - 1)
	}
	payment = cents(payment)

	balance := args.Principal
	var totalInterest float64
	schedule := make([]row, 0, scheduleRows)
	for m := 1; m <= months; m++ {
		interest := cents(balance * monthlyRate)
		principal := cents(payment - interest)
		if principal > balance || m == months {
			// Final payment clears the remaining balance exactly.
			principal = cents(balance)
		}
		balance = cents(balance - principal)
		totalInterest += interest
		if m <= scheduleRows {
			schedule = append(schedule, row{
				Month:     m,
				Payment:   cents(principal + interest),
				Principal: principal,
				Interest:  interest,
				Balance:   balance,
			})
		}
	}

	return shaper.Ok(map[string]any{
		"principal":           args.Principal,
		"annual_rate_percent": args.AnnualRatePercent,
		"term_years":          args.TermYears,
		"monthly_payment":     payment,
		"total_interest":      cents(totalInterest),
		"total_paid":          cents(args.Principal + totalInterest),
		"schedule":            schedule,
		"schedule_months":     len(schedule),
	})
}

// cents rounds to two decimal places.
func cents(v float64) float64 {
	return math.Round(v*100) / 100
}
