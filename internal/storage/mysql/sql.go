package mysql

const selectSourceByKeySQL = `
SELECT id, listing_id
FROM source_records
WHERE site = ? AND url = ?
FOR UPDATE
`

const insertListingSQL = `
INSERT INTO listings (id, title, location)
VALUES (?, ?, ?)
`

const insertSourceSQL = `
INSERT INTO source_records
  (id, listing_id, site, url, title, raw_price, raw_price_amount, raw_price_currency, raw_price_is_range, state)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, 'discovered')
`

const refreshSourceSQL = `
UPDATE source_records
SET title              = ?,
    raw_price          = ?,
    raw_price_amount   = ?,
    raw_price_currency = ?,
    raw_price_is_range = ?
WHERE id = ?
`

// Eligible = never scraped, or the detail aged out. Terminal 'gone' records
// are never retried.
const eligibleSourcesSQL = `
SELECT s.id, s.listing_id, s.site, s.url
FROM source_records s
LEFT JOIN raw_details d ON d.source_record_id = s.id
WHERE s.state <> 'gone'
  AND (d.id IS NULL OR d.scraped_at < ?)
ORDER BY s.created_at
`

const setSourceStateSQL = `
UPDATE source_records SET state = ? WHERE id = ?
`

const recordSourceErrorSQL = `
UPDATE source_records
SET state = ?, last_error = ?, last_error_at = ?
WHERE id = ?
`

const touchSourceFetchedSQL = `
UPDATE source_records SET fetched_at = ? WHERE id = ?
`

// Wholesale replacement: scrape columns are overwritten and any previous
// enrichment is cleared, since it described the old snapshot.
const replaceRawDetailSQL = `
INSERT INTO raw_details
  (id, source_record_id, price, price_currency, admin_rent, admin_rent_currency,
   area, rooms, floor, furnished, pets_allowed, elevator, parking,
   building_type, address, description, photos, external_id, scraped_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  price                  = VALUES(price),
  price_currency         = VALUES(price_currency),
  admin_rent             = VALUES(admin_rent),
  admin_rent_currency    = VALUES(admin_rent_currency),
  area                   = VALUES(area),
  rooms                  = VALUES(rooms),
  floor                  = VALUES(floor),
  furnished              = VALUES(furnished),
  pets_allowed           = VALUES(pets_allowed),
  elevator               = VALUES(elevator),
  parking                = VALUES(parking),
  building_type          = VALUES(building_type),
  address                = VALUES(address),
  description            = VALUES(description),
  photos                 = VALUES(photos),
  external_id            = VALUES(external_id),
  summary                = NULL,
  enriched_address       = NULL,
  enriched_rent          = NULL,
  enriched_admin_rent    = NULL,
  total_monthly_cost     = NULL,
  total_monthly_currency = NULL,
  provenance             = NULL,
  scraped_at             = VALUES(scraped_at),
  enriched_at            = NULL
`

const attachEnrichmentSQL = `
UPDATE raw_details
SET summary                = ?,
    enriched_address       = ?,
    enriched_rent          = ?,
    enriched_admin_rent    = ?,
    total_monthly_cost     = ?,
    total_monthly_currency = ?,
    provenance             = ?,
    enriched_at            = ?
WHERE source_record_id = ?
`

const getListingSQL = `
SELECT id, title, location, summary, street_address, area, rooms,
       rent, admin_fee, total_monthly_cost, currency, lat, lon, updated_at
FROM listings
WHERE id = ?
`

const listingDetailsSQL = `
SELECT d.id, d.source_record_id, d.price, d.price_currency, d.admin_rent, d.admin_rent_currency,
       d.area, d.rooms, d.floor, d.furnished, d.pets_allowed, d.elevator, d.parking,
       d.building_type, d.address, d.description, d.photos, d.external_id,
       d.summary, d.enriched_address, d.enriched_rent, d.enriched_admin_rent,
       d.total_monthly_cost, d.total_monthly_currency, d.provenance,
       d.scraped_at, d.enriched_at
FROM raw_details d
JOIN source_records s ON s.id = d.source_record_id
WHERE s.listing_id = ?
`

const updateListingSQL = `
UPDATE listings
SET summary            = ?,
    street_address     = ?,
    area               = ?,
    rooms              = ?,
    rent               = ?,
    admin_fee          = ?,
    total_monthly_cost = ?,
    currency           = ?,
    lat                = ?,
    lon                = ?,
    updated_at         = ?
WHERE id = ?
`

const listingSourcesSQL = `
SELECT id, listing_id, site, url, title, raw_price, raw_price_amount,
       raw_price_currency, raw_price_is_range, state, fetched_at, last_error, last_error_at
FROM source_records
WHERE listing_id = ?
ORDER BY created_at
`

const dueQueriesSQL = `
SELECT id, name, query, location, site, max_pages, is_active,
       run_interval_hours, last_run_at, last_error, last_error_at
FROM queries
WHERE is_active = 1
  AND (last_run_at IS NULL OR last_run_at <= DATE_SUB(?, INTERVAL run_interval_hours HOUR))
ORDER BY created_at
`

const recordQueryRunSQL = `
UPDATE queries
SET last_run_at = ?, last_error = ?, last_error_at = ?
WHERE id = ?
`

const insertQueryMatchesPrefix = "INSERT INTO query_matches (query_id, source_record_id, matched_at) VALUES "

const insertQueryMatchesOnDup = " ON DUPLICATE KEY UPDATE matched_at = VALUES(matched_at)"

const listQueriesSQL = `
SELECT id, name, query, location, site, max_pages, is_active,
       run_interval_hours, last_run_at, last_error, last_error_at
FROM queries
ORDER BY created_at
`

const insertQuerySQL = `
INSERT INTO queries
  (id, name, query, location, site, max_pages, is_active, run_interval_hours)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?)
`
