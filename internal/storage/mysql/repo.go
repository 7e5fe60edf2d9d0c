package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"lokum/internal/domain"
)

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
func valInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
func valF64(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
func valBool(p *bool) any {
	if p == nil {
		return nil
	}
	return *p
}
func valTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return *p
}
func valCur(p *domain.Currency) any {
	if p == nil {
		return nil
	}
	return string(*p)
}

func ptrStr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
func ptrInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}
func ptrF64(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
func ptrBool(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}
	b := v.Bool
	return &b
}
func ptrTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
func ptrCur(v sql.NullString) *domain.Currency {
	if !v.Valid || v.String == "" {
		return nil
	}
	c := domain.Currency(v.String)
	return &c
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// ResolveReference upserts one (site, url) pair in its own short transaction.
// First sight creates the listing and source record together; later sights
// only refresh the cheap discovery fields.
func (r *Repo) ResolveReference(ctx context.Context, ref domain.Reference, parsed *domain.ParsedPrice, now time.Time) (domain.Resolution, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Resolution{}, err
	}
	defer tx.Rollback()

	var rawPrice, rawAmount, rawCurrency any
	isRange := false
	if parsed != nil {
		rawPrice = parsed.Raw
		rawAmount = valF64(parsed.Amount)
		rawCurrency = valCur(parsed.Currency)
		isRange = parsed.IsRange
	}

	var srcID, listingID string
	err = tx.QueryRowContext(ctx, selectSourceByKeySQL, string(ref.Site), ref.URL).Scan(&srcID, &listingID)
	switch {
	case err == sql.ErrNoRows:
		listingID = uuid.NewString()
		srcID = uuid.NewString()
		var location any
		if ref.Location != "" {
			location = ref.Location
		}
		if _, err := tx.ExecContext(ctx, insertListingSQL, listingID, ref.Title, location); err != nil {
			return domain.Resolution{}, err
		}
		if _, err := tx.ExecContext(ctx, insertSourceSQL,
			srcID, listingID, string(ref.Site), ref.URL, ref.Title,
			rawPrice, rawAmount, rawCurrency, isRange,
		); err != nil {
			return domain.Resolution{}, err
		}
		if err := tx.Commit(); err != nil {
			return domain.Resolution{}, err
		}
		return domain.Resolution{SourceRecordID: srcID, ListingID: listingID, IsNew: true}, nil
	case err != nil:
		return domain.Resolution{}, err
	}

	if _, err := tx.ExecContext(ctx, refreshSourceSQL,
		ref.Title, rawPrice, rawAmount, rawCurrency, isRange, srcID,
	); err != nil {
		return domain.Resolution{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Resolution{}, err
	}
	return domain.Resolution{SourceRecordID: srcID, ListingID: listingID, IsNew: false}, nil
}

func (r *Repo) EligibleSources(ctx context.Context, cutoff time.Time) ([]domain.SourceWork, error) {
	rows, err := r.db.QueryContext(ctx, eligibleSourcesSQL, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SourceWork
	for rows.Next() {
		var w domain.SourceWork
		var site string
		if err := rows.Scan(&w.SourceRecordID, &w.ListingID, &site, &w.URL); err != nil {
			return nil, err
		}
		w.Site = domain.Site(site)
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *Repo) SetSourceState(ctx context.Context, id string, state domain.SourceState) error {
	_, err := r.db.ExecContext(ctx, setSourceStateSQL, string(state), id)
	return err
}

func (r *Repo) RecordSourceError(ctx context.Context, id string, state domain.SourceState, class, msg string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, recordSourceErrorSQL, string(state), class+": "+msg, at, id)
	return err
}

func (r *Repo) ReplaceRawDetail(ctx context.Context, d domain.RawDetail) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var photos any
	if len(d.Photos) > 0 {
		b, _ := json.Marshal(d.Photos)
		photos = string(b)
	}
	if _, err := tx.ExecContext(ctx, replaceRawDetailSQL,
		d.ID, d.SourceRecordID,
		valF64(d.Price), valCur(d.PriceCurrency),
		valF64(d.AdminRent), valCur(d.AdminRentCurrency),
		valF64(d.Area), valInt(d.Rooms), valInt(d.Floor),
		valBool(d.Furnished), valBool(d.PetsAllowed), valBool(d.Elevator), valBool(d.Parking),
		valStr(d.BuildingType), valStr(d.Address), d.Description,
		photos, valStr(d.ExternalID), d.ScrapedAt,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, touchSourceFetchedSQL, d.ScrapedAt, d.SourceRecordID); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repo) AttachEnrichment(ctx context.Context, sourceRecordID string, e domain.EnrichedFacts, at time.Time) error {
	prov, _ := json.Marshal(e.Provenance)
	_, err := r.db.ExecContext(ctx, attachEnrichmentSQL,
		e.Summary, valStr(e.Address),
		valF64(e.Costs.Rent), valF64(e.Costs.AdminRent),
		valF64(e.Costs.TotalMonthly), valCur(e.Costs.TotalMonthlyCurrency),
		string(prov), at, sourceRecordID,
	)
	return err
}

func (r *Repo) scanListing(row *sql.Row) (domain.Listing, error) {
	var l domain.Listing
	var location, summary, addr, currency sql.NullString
	var area, rent, adminFee, total, lat, lon sql.NullFloat64
	var rooms sql.NullInt64
	if err := row.Scan(
		&l.ID, &l.Title, &location, &summary, &addr, &area, &rooms,
		&rent, &adminFee, &total, &currency, &lat, &lon, &l.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return domain.Listing{}, domain.ErrNotFound
		}
		return domain.Listing{}, err
	}
	l.Location = ptrStr(location)
	l.Summary = ptrStr(summary)
	l.StreetAddress = ptrStr(addr)
	l.Area = ptrF64(area)
	l.Rooms = ptrInt(rooms)
	l.Rent = ptrF64(rent)
	l.AdminFee = ptrF64(adminFee)
	l.TotalMonthlyCost = ptrF64(total)
	l.Currency = ptrCur(currency)
	l.Lat = ptrF64(lat)
	l.Lon = ptrF64(lon)
	return l, nil
}

func (r *Repo) ListingWithDetails(ctx context.Context, listingID string) (domain.Listing, []domain.RawDetail, error) {
	l, err := r.scanListing(r.db.QueryRowContext(ctx, getListingSQL, listingID))
	if err != nil {
		return domain.Listing{}, nil, err
	}

	rows, err := r.db.QueryContext(ctx, listingDetailsSQL, listingID)
	if err != nil {
		return domain.Listing{}, nil, err
	}
	defer rows.Close()

	var details []domain.RawDetail
	for rows.Next() {
		var d domain.RawDetail
		var (
			price, adminRent, area                     sql.NullFloat64
			enrRent, enrAdmin, total                   sql.NullFloat64
			rooms, floor                               sql.NullInt64
			furnished, pets, elevator, parking         sql.NullBool
			priceCur, adminCur, totalCur               sql.NullString
			buildingType, address, externalID          sql.NullString
			summary, enrAddr                           sql.NullString
			photosRaw, provRaw                         []byte
			enrichedAt                                 sql.NullTime
		)
		if err := rows.Scan(
			&d.ID, &d.SourceRecordID, &price, &priceCur, &adminRent, &adminCur,
			&area, &rooms, &floor, &furnished, &pets, &elevator, &parking,
			&buildingType, &address, &d.Description, &photosRaw, &externalID,
			&summary, &enrAddr, &enrRent, &enrAdmin, &total, &totalCur, &provRaw,
			&d.ScrapedAt, &enrichedAt,
		); err != nil {
			return domain.Listing{}, nil, err
		}
		d.Price = ptrF64(price)
		d.PriceCurrency = ptrCur(priceCur)
		d.AdminRent = ptrF64(adminRent)
		d.AdminRentCurrency = ptrCur(adminCur)
		d.Area = ptrF64(area)
		d.Rooms = ptrInt(rooms)
		d.Floor = ptrInt(floor)
		d.Furnished = ptrBool(furnished)
		d.PetsAllowed = ptrBool(pets)
		d.Elevator = ptrBool(elevator)
		d.Parking = ptrBool(parking)
		d.BuildingType = ptrStr(buildingType)
		d.Address = ptrStr(address)
		d.ExternalID = ptrStr(externalID)
		d.Summary = ptrStr(summary)
		d.EnrichedAddress = ptrStr(enrAddr)
		d.EnrichedRent = ptrF64(enrRent)
		d.EnrichedAdminRent = ptrF64(enrAdmin)
		d.TotalMonthlyCost = ptrF64(total)
		d.TotalMonthlyCurrency = ptrCur(totalCur)
		d.EnrichedAt = ptrTime(enrichedAt)
		if len(photosRaw) > 0 {
			_ = json.Unmarshal(photosRaw, &d.Photos)
		}
		if len(provRaw) > 0 {
			d.Provenance = append([]byte(nil), provRaw...)
		}
		details = append(details, d)
	}
	return l, details, rows.Err()
}

func (r *Repo) UpdateListing(ctx context.Context, l domain.Listing) error {
	_, err := r.db.ExecContext(ctx, updateListingSQL,
		valStr(l.Summary), valStr(l.StreetAddress),
		valF64(l.Area), valInt(l.Rooms),
		valF64(l.Rent), valF64(l.AdminFee), valF64(l.TotalMonthlyCost),
		valCur(l.Currency), valF64(l.Lat), valF64(l.Lon),
		l.UpdatedAt, l.ID,
	)
	return err
}

func (r *Repo) scanQueries(rows *sql.Rows) ([]domain.SearchQuery, error) {
	defer rows.Close()
	var out []domain.SearchQuery
	for rows.Next() {
		var q domain.SearchQuery
		var site string
		var lastRunAt, lastErrorAt sql.NullTime
		var lastError sql.NullString
		if err := rows.Scan(
			&q.ID, &q.Name, &q.Query, &q.Location, &site, &q.MaxPages, &q.IsActive,
			&q.RunIntervalHours, &lastRunAt, &lastError, &lastErrorAt,
		); err != nil {
			return nil, err
		}
		q.Site = domain.Site(site)
		q.LastRunAt = ptrTime(lastRunAt)
		q.LastError = ptrStr(lastError)
		q.LastErrorAt = ptrTime(lastErrorAt)
		out = append(out, q)
	}
	return out, rows.Err()
}

func (r *Repo) DueQueries(ctx context.Context, now time.Time) ([]domain.SearchQuery, error) {
	rows, err := r.db.QueryContext(ctx, dueQueriesSQL, now)
	if err != nil {
		return nil, err
	}
	return r.scanQueries(rows)
}

func (r *Repo) RecordQueryRun(ctx context.Context, queryID string, at time.Time, runErr string) error {
	var lastError, lastErrorAt any
	if runErr != "" {
		lastError = runErr
		lastErrorAt = at
	}
	_, err := r.db.ExecContext(ctx, recordQueryRunSQL, at, lastError, lastErrorAt, queryID)
	return err
}

func (r *Repo) AddQueryMatches(ctx context.Context, queryID string, sourceRecordIDs []string, at time.Time) error {
	if len(sourceRecordIDs) == 0 {
		return nil
	}
	values := make([]string, 0, len(sourceRecordIDs))
	args := make([]any, 0, len(sourceRecordIDs)*3)
	for _, sid := range sourceRecordIDs {
		values = append(values, "(?,?,?)")
		args = append(args, queryID, sid, at)
	}
	sqlStr := insertQueryMatchesPrefix + strings.Join(values, ",") + insertQueryMatchesOnDup
	_, err := r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *Repo) GetListing(ctx context.Context, id string) (domain.ListingView, error) {
	l, err := r.scanListing(r.db.QueryRowContext(ctx, getListingSQL, id))
	if err != nil {
		return domain.ListingView{}, err
	}
	view := domain.ListingView{Listing: l}

	rows, err := r.db.QueryContext(ctx, listingSourcesSQL, id)
	if err != nil {
		return domain.ListingView{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var s domain.SourceRecord
		var site, state string
		var rawPrice, rawCurrency, lastError sql.NullString
		var rawAmount sql.NullFloat64
		var isRange bool
		var fetchedAt, lastErrorAt sql.NullTime
		if err := rows.Scan(
			&s.ID, &s.ListingID, &site, &s.URL, &s.Title,
			&rawPrice, &rawAmount, &rawCurrency, &isRange,
			&state, &fetchedAt, &lastError, &lastErrorAt,
		); err != nil {
			return domain.ListingView{}, err
		}
		s.Site = domain.Site(site)
		s.State = domain.SourceState(state)
		if rawPrice.Valid {
			s.RawPrice = &domain.ParsedPrice{
				Raw:      rawPrice.String,
				Amount:   ptrF64(rawAmount),
				Currency: ptrCur(rawCurrency),
				IsRange:  isRange,
			}
		}
		s.FetchedAt = ptrTime(fetchedAt)
		s.LastError = ptrStr(lastError)
		s.LastErrorAt = ptrTime(lastErrorAt)
		view.Sources = append(view.Sources, s)
	}
	return view, rows.Err()
}

func (r *Repo) ListListings(ctx context.Context, q domain.ListingsQuery) (domain.ListingsPage, error) {
	where := []string{"1=1"}
	args := []any{}
	if q.Q != nil && *q.Q != "" {
		where = append(where, "(title LIKE ? OR summary LIKE ?)")
		pat := "%" + *q.Q + "%"
		args = append(args, pat, pat)
	}
	if q.Location != nil && *q.Location != "" {
		where = append(where, "(location LIKE ? OR street_address LIKE ?)")
		pat := "%" + *q.Location + "%"
		args = append(args, pat, pat)
	}
	if q.MaxRent != nil {
		where = append(where, "rent IS NOT NULL AND rent <= ?")
		args = append(args, *q.MaxRent)
	}
	if q.MinRooms != nil {
		where = append(where, "rooms IS NOT NULL AND rooms >= ?")
		args = append(args, *q.MinRooms)
	}
	args = append(args, q.Limit)

	rows, err := r.db.QueryContext(ctx, `
SELECT id, title, location, summary, street_address, area, rooms,
       rent, admin_fee, total_monthly_cost, currency, lat, lon, updated_at
FROM listings
WHERE `+strings.Join(where, " AND ")+`
ORDER BY updated_at DESC
LIMIT ?`, args...)
	if err != nil {
		return domain.ListingsPage{}, err
	}
	defer rows.Close()

	var out []domain.Listing
	for rows.Next() {
		var l domain.Listing
		var location, summary, addr, currency sql.NullString
		var area, rent, adminFee, total, lat, lon sql.NullFloat64
		var rooms sql.NullInt64
		if err := rows.Scan(
			&l.ID, &l.Title, &location, &summary, &addr, &area, &rooms,
			&rent, &adminFee, &total, &currency, &lat, &lon, &l.UpdatedAt,
		); err != nil {
			return domain.ListingsPage{}, err
		}
		l.Location = ptrStr(location)
		l.Summary = ptrStr(summary)
		l.StreetAddress = ptrStr(addr)
		l.Area = ptrF64(area)
		l.Rooms = ptrInt(rooms)
		l.Rent = ptrF64(rent)
		l.AdminFee = ptrF64(adminFee)
		l.TotalMonthlyCost = ptrF64(total)
		l.Currency = ptrCur(currency)
		l.Lat = ptrF64(lat)
		l.Lon = ptrF64(lon)
		out = append(out, l)
	}
	return domain.ListingsPage{Items: out}, rows.Err()
}

func (r *Repo) ListQueries(ctx context.Context) ([]domain.SearchQuery, error) {
	rows, err := r.db.QueryContext(ctx, listQueriesSQL)
	if err != nil {
		return nil, err
	}
	return r.scanQueries(rows)
}

func (r *Repo) CreateQuery(ctx context.Context, q domain.SearchQuery) error {
	_, err := r.db.ExecContext(ctx, insertQuerySQL,
		q.ID, q.Name, q.Query, q.Location, string(q.Site),
		q.MaxPages, q.IsActive, q.RunIntervalHours,
	)
	return err
}
