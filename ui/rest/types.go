package rest

import (
	"errors"
	"net/url"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/AzielCF/az-mediacache/mediacache/application"
	"github.com/AzielCF/az-mediacache/mediacache/domain"
	"github.com/AzielCF/az-mediacache/mediacache/eviction"
)

var dataURLPattern = regexp.MustCompile(`^data:[\w.+-]+/[\w.+-]+(;[\w=.+-]+)*,`)

func remoteRefRule(value any) error {
	ref, _ := value.(string)
	if ref == "" {
		return nil
	}
	u, err := url.Parse(ref)
	if err != nil || u.Scheme == "" {
		return errors.New("must be an absolute URL")
	}
	return nil
}

type StoreEntryRequest struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	GroupID   string `json:"group_id"`
	Payload   string `json:"payload"`
	Label     string `json:"label"`
	RemoteRef string `json:"remote_ref"`
}

func (r StoreEntryRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.OwnerID, validation.Required),
		validation.Field(&r.GroupID, validation.Required),
		validation.Field(&r.Payload, validation.Required, validation.Match(dataURLPattern).Error("must be a data URL")),
		validation.Field(&r.RemoteRef, validation.By(remoteRefRule)),
	)
}

type RehydrateRequest struct {
	ID        string `json:"id"`
	RemoteRef string `json:"remote_ref"`
	OwnerID   string `json:"owner_id"`
	GroupID   string `json:"group_id"`
}

func (r RehydrateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RemoteRef, validation.Required, validation.By(remoteRefRule)),
		validation.Field(&r.OwnerID, validation.Required),
		validation.Field(&r.GroupID, validation.Required),
	)
}

type DeleteResult struct {
	Removed int `json:"removed"`
}

type StatsResponse struct {
	Cache     application.CacheStats      `json:"cache"`
	Rehydrate application.RehydratorStats `json:"rehydrate"`
}

type SettingsResponse struct {
	MaxTotalBytes int64   `json:"max_total_bytes"`
	MaxAgeMs      int64   `json:"max_age_ms"`
	AgeWeight     float64 `json:"age_weight"`
	AccessWeight  float64 `json:"access_weight"`
	SafetyMargin  float64 `json:"safety_margin"`
}

func toSettingsResponse(cfg eviction.Config) SettingsResponse {
	return SettingsResponse{
		MaxTotalBytes: cfg.MaxTotalBytes,
		MaxAgeMs:      cfg.MaxAge.Milliseconds(),
		AgeWeight:     cfg.AgeWeight,
		AccessWeight:  cfg.AccessWeight,
		SafetyMargin:  cfg.SafetyMargin,
	}
}

func metas(entries []domain.Entry) []domain.Entry {
	out := make([]domain.Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Meta())
	}
	return out
}
