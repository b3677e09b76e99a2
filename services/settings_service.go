package services

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ferreirogomes/nftmarket/models"
	"github.com/ferreirogomes/nftmarket/storage"
)

// PublicSettings is the subset of settings shown to everyone.
type PublicSettings struct {
	BaseCurrency        models.Currency    `json:"base_currency"`
	SupportedCurrencies []models.Currency  `json:"supported_currencies"`
	ExchangeRates       models.RateTable   `json:"exchange_rates"`
	DepositAddresses    models.AddressBook `json:"deposit_addresses"`
}

type SettingsService struct {
	store storage.Store
	log   logrus.FieldLogger
}

func NewSettingsService(store storage.Store, log logrus.FieldLogger) *SettingsService {
	return &SettingsService{store: store, log: log.WithField("component", "settings")}
}

func (s *SettingsService) Get(ctx context.Context) (models.Settings, error) {
	settings, err := s.store.GetSettings(ctx)
	return settings, fromStorage(err, "load settings")
}

func (s *SettingsService) Public(ctx context.Context) (PublicSettings, error) {
	settings, err := s.Get(ctx)
	if err != nil {
		return PublicSettings{}, err
	}
	return PublicSettings{
		BaseCurrency:        models.BaseCurrency,
		SupportedCurrencies: settings.SupportedCurrencies(),
		ExchangeRates:       settings.ExchangeRates,
		DepositAddresses:    settings.DepositAddresses,
	}, nil
}

// Update replaces the settings after normalising currency codes.
func (s *SettingsService) Update(ctx context.Context, in models.Settings) (models.Settings, error) {
	out := models.Settings{
		ExchangeRates:      models.RateTable{},
		WithdrawalMinimums: models.CurrencyAmounts{},
		DepositAddresses:   models.AddressBook{},
		UpdatedAt:          now(),
	}

	for key, rate := range in.ExchangeRates {
		from, to, ok := strings.Cut(strings.ToUpper(strings.TrimSpace(key)), "_TO_")
		if !ok || from == "" || to == "" || from == to {
			return models.Settings{}, validationf("malformed rate key %q, want FROM_TO_TO", key)
		}
		fromC, toC := models.ParseCurrency(from), models.ParseCurrency(to)
		if fromC != models.BaseCurrency && toC != models.BaseCurrency {
			return models.Settings{}, validationf("rate %s must convert to or from %s", key, models.BaseCurrency)
		}
		if rate.IsNegative() {
			return models.Settings{}, validationf("rate %s must not be negative", key)
		}
		if !models.FitsScale(rate) {
			return models.Settings{}, validationf("rate %s has more than 18 decimal places", key)
		}
		normalized := models.RateKey(fromC, toC)
		if _, dup := out.ExchangeRates[normalized]; dup {
			return models.Settings{}, validationf("rate %s is given more than once", normalized)
		}
		out.ExchangeRates[normalized] = rate
	}
	for c, minimum := range in.WithdrawalMinimums {
		if minimum.IsNegative() {
			return models.Settings{}, validationf("withdrawal minimum for %s must not be negative", c)
		}
		if !models.FitsScale(minimum) {
			return models.Settings{}, validationf("withdrawal minimum for %s has more than 18 decimal places", c)
		}
		normalized := models.ParseCurrency(string(c))
		if _, dup := out.WithdrawalMinimums[normalized]; dup {
			return models.Settings{}, validationf("withdrawal minimum for %s is given more than once", normalized)
		}
		out.WithdrawalMinimums[normalized] = minimum
	}
	for c, addr := range in.DepositAddresses {
		if addr = strings.TrimSpace(addr); addr != "" {
			out.DepositAddresses[models.ParseCurrency(string(c))] = addr
		}
	}

	if err := s.store.SaveSettings(ctx, out); err != nil {
		return models.Settings{}, fromStorage(err, "save settings")
	}
	s.log.WithField("currencies", out.SupportedCurrencies()).Info("settings updated")
	return out, nil
}
