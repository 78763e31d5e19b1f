package payrollapi

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"paydesk/internal/domain/payslip"
)

var ErrProfileMissing = errors.New("company profile is not configured")

type profileFetcher interface {
	GetCompanyProfile(ctx context.Context, auth AuthContext) (payslip.CompanyProfile, error)
}

// ProfileSource resolves the company profile, preferring a local override file.
// Concurrent lookups with the same credential share one upstream request.
type ProfileSource struct {
	upstream profileFetcher
	override *payslip.CompanyProfile
	group    singleflight.Group
}

func NewProfileSource(upstream profileFetcher, overridePath string) (*ProfileSource, error) {
	src := &ProfileSource{upstream: upstream}
	if overridePath == "" {
		return src, nil
	}
	profile, err := LoadProfileFile(overridePath)
	if err != nil {
		return nil, err
	}
	src.override = &profile
	return src, nil
}

func (s *ProfileSource) Profile(ctx context.Context, auth AuthContext) (payslip.CompanyProfile, error) {
	if s.override != nil {
		return *s.override, nil
	}
	if s.upstream == nil {
		return payslip.CompanyProfile{}, ErrProfileMissing
	}
	v, err, _ := s.group.Do(auth.Token, func() (any, error) {
		return s.upstream.GetCompanyProfile(ctx, auth)
	})
	if errors.Is(err, ErrNotFound) {
		return payslip.CompanyProfile{}, ErrProfileMissing
	}
	if err != nil {
		return payslip.CompanyProfile{}, err
	}
	profile := v.(payslip.CompanyProfile)
	if profile.Name == "" {
		return payslip.CompanyProfile{}, ErrProfileMissing
	}
	return profile, nil
}

func LoadProfileFile(path string) (payslip.CompanyProfile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return payslip.CompanyProfile{}, fmt.Errorf("read company profile: %w", err)
	}
	var profile payslip.CompanyProfile
	if err := yaml.Unmarshal(b, &profile); err != nil {
		return payslip.CompanyProfile{}, fmt.Errorf("parse company profile: %w", err)
	}
	if profile.Name == "" {
		return payslip.CompanyProfile{}, fmt.Errorf("parse company profile: %w", ErrProfileMissing)
	}
	return profile, nil
}
