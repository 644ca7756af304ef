package revenue

import (
	"errors"
	"fmt"
	"math"

	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/config"
)

const basisPointsTotal = 10000

// ErrInvalidPolicy is returned for share percentages that are negative or do not sum to 100
var ErrInvalidPolicy = errors.New("invalid revenue policy")

// Stakeholder identifies a revenue share recipient
type Stakeholder string

const (
	Community Stakeholder = "community"
	Panchayat Stakeholder = "panchayat"
	Platform  Stakeholder = "platform"
	Buffer    Stakeholder = "buffer"
)

// stakeholders is the tie-break order for the remainder: earlier wins, buffer loses
var stakeholders = [4]Stakeholder{Community, Panchayat, Platform, Buffer}

// Policy holds stakeholder percentages
type Policy struct {
	Community float64 `json:"community"`
	Panchayat float64 `json:"panchayat"`
	Platform  float64 `json:"platform"`
	Buffer    float64 `json:"buffer"`
}

// DefaultPolicy is the 60/20/15/5 community-first split
func DefaultPolicy() Policy {
	return Policy{Community: 60, Panchayat: 20, Platform: 15, Buffer: 5}
}

// PolicyFromConfig builds a policy from the configured revenue shares
func PolicyFromConfig(shares config.RevenueShares) Policy {
	return Policy{
		Community: shares.Community,
		Panchayat: shares.Panchayat,
		Platform:  shares.Platform,
		Buffer:    shares.Buffer,
	}
}

func (p Policy) percentages() [4]float64 {
	return [4]float64{p.Community, p.Panchayat, p.Platform, p.Buffer}
}

// basisPoints converts the percentages to hundredths of a percent
func (p Policy) basisPoints() ([4]int64, error) {
	var bps [4]int64
	var sum int64
	for i, pct := range p.percentages() {
		if pct < 0 || math.IsNaN(pct) || math.IsInf(pct, 0) {
			return bps, fmt.Errorf("%w: %s share %v", ErrInvalidPolicy, stakeholders[i], pct)
		}
		bps[i] = int64(math.Round(pct * 100))
		sum += bps[i]
	}
	if sum != basisPointsTotal {
		return bps, fmt.Errorf("%w: shares sum to %v, want 100", ErrInvalidPolicy, float64(sum)/100)
	}
	return bps, nil
}

// Validate checks the policy percentages
func (p Policy) Validate() error {
	_, err := p.basisPoints()
	return err
}

// Shares is the revenue split among stakeholders
type Shares struct {
	Community Money `json:"community"`
	Panchayat Money `json:"panchayat"`
	Platform  Money `json:"platform"`
	Buffer    Money `json:"buffer"`
}

// Total returns the sum of all shares
func (s Shares) Total() Money {
	return s.Community + s.Panchayat + s.Platform + s.Buffer
}

// Get returns the share of one stakeholder
func (s Shares) Get(who Stakeholder) Money {
	switch who {
	case Community:
		return s.Community
	case Panchayat:
		return s.Panchayat
	case Platform:
		return s.Platform
	case Buffer:
		return s.Buffer
	}
	return 0
}

func sharesFromArray(a [4]Money) Shares {
	return Shares{Community: a[0], Panchayat: a[1], Platform: a[2], Buffer: a[3]}
}

// Splitter divides revenue under a fixed policy so the shares always sum to the total
type Splitter struct {
	policy  Policy
	bps     [4]int64
	largest int
}

// NewSplitter validates the policy and returns a splitter for it
func NewSplitter(policy Policy) (*Splitter, error) {
	bps, err := policy.basisPoints()
	if err != nil {
		return nil, err
	}
	largest := 0
	for i := 1; i < len(bps); i++ {
		if bps[i] > bps[largest] {
			largest = i
		}
	}
	return &Splitter{policy: policy, bps: bps, largest: largest}, nil
}

// Policy returns the splitter's policy
func (s *Splitter) Policy() Policy {
	return s.policy
}

// Split divides total into stakeholder shares. Every share except the largest is
// total×pct rounded half-up to the minor unit; the largest takes the remainder.
// If rounding up would overshoot the total, all non-largest shares are floored.
func (s *Splitter) Split(total Money) (Shares, error) {
	if total < 0 {
		return Shares{}, fmt.Errorf("revenue total %s must not be negative", total)
	}
	if int64(total) > math.MaxInt64/basisPointsTotal {
		return Shares{}, fmt.Errorf("revenue total %s too large to split", total)
	}

	out, assigned := s.distribute(total, basisPointsTotal/2)
	if assigned > total {
		out, assigned = s.distribute(total, 0)
	}
	out[s.largest] = total - assigned
	return sharesFromArray(out), nil
}

func (s *Splitter) distribute(total Money, bias int64) ([4]Money, Money) {
	var out [4]Money
	var assigned Money
	for i, bp := range s.bps {
		if i == s.largest {
			continue
		}
		out[i] = Money((int64(total)*bp + bias) / basisPointsTotal)
		assigned += out[i]
	}
	return out, assigned
}
