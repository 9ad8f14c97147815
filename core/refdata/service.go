package refdata

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"

	"github.com/wunderbyte/evasync/core"
	"github.com/wunderbyte/evasync/core/evasys"
)

// searchCap is the largest result list the picker widgets will render.
const searchCap = 100

// translation keys
const (
	tooManyResultsKey = "refdata-toomanyresults"
	noConnectionKey   = "refdata-noconnection"
)

type (
	// Entry is one row of a picker list; ID carries the composite
	// "<id>-<base64(name)>" key.
	Entry struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	// Service presents subunit, period and form lists as key-to-label
	// mappings for configuration screens, backed by remote lookups.
	Service struct {
		client     evasys.Client
		cache      Cache
		conf       core.EvasysConfig
		logger     core.Logger
		translator ut.Translator
	}
)

func NewService(client evasys.Client, cache Cache, conf core.EvasysConfig, logger core.Logger, translator ut.Translator) *Service {
	_ = translator.Add(tooManyResultsKey, "too many results to show ({0}), please narrow your search", false)
	_ = translator.Add(noConnectionKey, "the evaluation system cannot be reached or is not configured", false)
	return &Service{
		client:     client,
		cache:      cache,
		conf:       conf,
		logger:     logger,
		translator: translator,
	}
}

// Subunits returns {encodedKey: name} for every remote subunit. A transport
// failure yields an empty map; callers must treat empty plus missing
// credentials as "not configured" rather than "no data".
func (svc *Service) Subunits(ctx context.Context) map[string]string {
	units, err := svc.client.FetchSubunits(ctx)
	if err != nil {
		svc.logger.Debug(fmt.Sprintf("refdata: fetching subunits: %v", err))
		return map[string]string{}
	}
	out := make(map[string]string, len(units))
	for _, u := range units {
		out[EncodeKey(u.ID, u.Name)] = u.Name
	}
	return out
}

// Periods returns {encodedKey: title} for every remote period; same failure
// policy as Subunits.
func (svc *Service) Periods(ctx context.Context) map[string]string {
	periods, err := svc.client.FetchPeriods(ctx)
	if err != nil {
		svc.logger.Debug(fmt.Sprintf("refdata: fetching periods: %v", err))
		return map[string]string{}
	}
	out := make(map[string]string, len(periods))
	for _, p := range periods {
		out[EncodeKey(p.ID, p.Title)] = p.Title
	}
	return out
}

// SearchPeriods filters periods case-insensitively by substring. The base
// order is reversed so the most recent periods come first. More than
// searchCap matches returns an empty list plus a translated warning instead
// of silently truncating.
func (svc *Service) SearchPeriods(ctx context.Context, query string) ([]Entry, string) {
	periods, err := svc.client.FetchPeriods(ctx)
	if err != nil {
		svc.logger.Debug(fmt.Sprintf("refdata: searching periods: %v", err))
		return []Entry{}, svc.t(noConnectionKey)
	}

	var list []Entry
	q := core.CleanString(query, true)
	for i := len(periods) - 1; i >= 0; i-- {
		p := periods[i]
		if q == "" || strings.Contains(strings.ToLower(p.Title), q) {
			list = append(list, Entry{ID: EncodeKey(p.ID, p.Title), Name: p.Title})
		}
	}
	return svc.capped(list)
}

// SearchForms filters the cached form titles the same way SearchPeriods
// filters periods (base order preserved).
func (svc *Service) SearchForms(ctx context.Context, query string) ([]Entry, string) {
	titles, err := svc.FormTitles(ctx)
	if err != nil {
		svc.logger.Debug(fmt.Sprintf("refdata: searching forms: %v", err))
		return []Entry{}, svc.t(noConnectionKey)
	}

	ids := make([]int, 0, len(titles.Titles))
	for id := range titles.Titles {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var list []Entry
	q := core.CleanString(query, true)
	for _, id := range ids {
		title := titles.Titles[id]
		if q == "" || strings.Contains(strings.ToLower(title), q) {
			list = append(list, Entry{ID: EncodeKey(id, title), Name: title})
		}
	}
	return svc.capped(list)
}

// Forms returns {formID: name} for every form usable by the configured
// subunit.
func (svc *Service) Forms(ctx context.Context) (map[int]string, error) {
	subunitID, err := KeyID(svc.conf.Subunit)
	if err != nil {
		return nil, err
	}
	forms, err := svc.client.FetchForms(ctx, subunitID)
	if err != nil {
		svc.logger.Debug(fmt.Sprintf("refdata: fetching forms: %v", err))
		return map[int]string{}, nil
	}
	out := make(map[int]string, len(forms))
	for _, f := range forms {
		out[f.ID] = f.Name
	}
	return out, nil
}

// FormTitles returns the process-wide {formID: formTitle} cache. When empty
// it walks every form from Forms and issues one GetForm call per id; forms
// rarely change, so the N+1 is paid once per cache lifetime.
func (svc *Service) FormTitles(ctx context.Context) (FormTitles, error) {
	if cached, ok := svc.cache.Get(); ok {
		return cached, nil
	}

	forms, err := svc.Forms(ctx)
	if err != nil {
		return FormTitles{}, err
	}
	titles := make(map[int]string, len(forms))
	for id := range forms {
		form, err := svc.client.GetForm(ctx, id)
		if err != nil {
			return FormTitles{}, err
		}
		titles[form.ID] = form.Title
	}

	ft := FormTitles{Titles: titles, FetchedAt: time.Now().UTC()}
	if len(titles) > 0 {
		svc.cache.Set(ft)
	}
	return ft, nil
}

// InvalidateForms drops the form-title cache; the next FormTitles call
// rebuilds it. Wired to an explicit admin action.
func (svc *Service) InvalidateForms() {
	svc.cache.Invalidate()
}

func (svc *Service) capped(list []Entry) ([]Entry, string) {
	if len(list) > searchCap {
		return []Entry{}, svc.t(tooManyResultsKey, fmt.Sprintf("> %d", searchCap))
	}
	if list == nil {
		list = []Entry{}
	}
	return list, ""
}

func (svc *Service) t(key string, params ...string) string {
	s, err := svc.translator.T(key, params...)
	if err != nil {
		return key
	}
	return s
}
