package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"foodbridge.org/internal/catalog"
	"foodbridge.org/internal/ids"
)

// Store implements catalog.Service on PostgreSQL. The claim-filing pair
// of writes runs inside one transaction with a status-conditioned
// update, so readers never observe a claim against an available offer.
type Store struct {
	db     *sql.DB
	policy catalog.Policy
}

var _ catalog.Service = (*Store)(nil)

func Open(dsn string, policy catalog.Policy) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db, policy: policy}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

const offerColumns = `id, name, image_url, quantity, pickup_location, expires_at, notes,
	donor_name, donor_email, donor_photo_url, status, created_at, updated_at`

func (s *Store) CreateOffer(ctx context.Context, offer catalog.Offer) (catalog.Offer, error) {
	if err := offer.Validate(); err != nil {
		return catalog.Offer{}, err
	}

	now := time.Now().UTC()
	offer.ID = ids.New()
	// Status is store-assigned; any caller-supplied value is ignored.
	offer.Status = catalog.StatusAvailable
	offer.CreatedAt = now
	offer.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		insert into foods (id, name, image_url, quantity, pickup_location, expires_at, notes,
			donor_name, donor_email, donor_photo_url, status, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, offer.ID, offer.Name, offer.ImageURL, offer.Quantity, offer.PickupLocation,
		offer.ExpiresAt, offer.Notes, offer.Donor.Name, offer.Donor.Email,
		offer.Donor.PhotoURL, string(offer.Status), offer.CreatedAt, offer.UpdatedAt)
	if err != nil {
		return catalog.Offer{}, err
	}
	return offer, nil
}

func (s *Store) GetOffer(ctx context.Context, id string) (catalog.Offer, error) {
	row := s.db.QueryRowContext(ctx, `select `+offerColumns+` from foods where id=$1`, id)
	offer, err := scanOffer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Offer{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Offer{}, err
	}
	return offer, nil
}

func (s *Store) ListAvailable(ctx context.Context, filter catalog.ListFilter) ([]catalog.Offer, error) {
	query := `select ` + offerColumns + ` from foods where status=$1`
	args := []any{string(catalog.StatusAvailable)}

	if term := strings.TrimSpace(filter.Search); term != "" {
		// The term is literal text: escape LIKE metacharacters instead of
		// feeding untrusted input to a pattern facility.
		query += ` and name ilike $2 escape '\'`
		args = append(args, "%"+escapeLike(term)+"%")
	}
	if filter.SortByExpiry {
		query += ` order by expires_at asc`
	} else {
		query += ` order by id asc`
	}

	return s.listOffers(ctx, query, args...)
}

func (s *Store) ListFeatured(ctx context.Context) ([]catalog.Offer, error) {
	query := `select ` + offerColumns + ` from foods
		where status=$1 order by quantity desc, id asc limit $2`
	return s.listOffers(ctx, query, string(catalog.StatusAvailable), catalog.FeaturedLimit)
}

func (s *Store) ListByDonor(ctx context.Context, email string) ([]catalog.Offer, error) {
	query := `select ` + offerColumns + ` from foods
		where lower(donor_email)=lower($1) order by id asc`
	return s.listOffers(ctx, query, strings.TrimSpace(email))
}

func (s *Store) UpdateOffer(ctx context.Context, id string, patch catalog.OfferPatch) (catalog.Offer, error) {
	if err := patch.Validate(); err != nil {
		return catalog.Offer{}, err
	}

	row := s.db.QueryRowContext(ctx, `
		update foods
		set name=$2, image_url=$3, quantity=$4, pickup_location=$5, expires_at=$6, notes=$7, updated_at=now()
		where id=$1
		returning `+offerColumns+`
	`, id, patch.Name, patch.ImageURL, patch.Quantity, patch.PickupLocation, patch.ExpiresAt, patch.Notes)

	offer, err := scanOffer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Offer{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Offer{}, err
	}
	return offer, nil
}

func (s *Store) DeleteOffer(ctx context.Context, id string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from foods where id=$1`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) FileClaim(ctx context.Context, offerID string, claim catalog.Claim) (catalog.Claim, error) {
	if strings.TrimSpace(claim.Requester.Email) == "" {
		return catalog.Claim{}, catalog.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return catalog.Claim{}, err
	}
	defer func() { _ = tx.Rollback() }()

	// Lock the offer row: existence check, own-claim policy and the
	// snapshot all read a stable state.
	var name, imageURL, pickupLocation, donorName, donorEmail, donorPhotoURL, status string
	err = tx.QueryRowContext(ctx, `
		select name, image_url, pickup_location, donor_name, donor_email, donor_photo_url, status
		from foods where id=$1 for update
	`, offerID).Scan(&name, &imageURL, &pickupLocation, &donorName, &donorEmail, &donorPhotoURL, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Claim{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Claim{}, err
	}
	if !s.policy.AllowOwnClaim && strings.EqualFold(strings.TrimSpace(claim.Requester.Email), donorEmail) {
		return catalog.Claim{}, catalog.ErrOwnClaim
	}

	now := time.Now().UTC()
	claim.ID = ids.New()
	claim.OfferID = offerID
	claim.OfferName = name
	claim.OfferImageURL = imageURL
	claim.PickupLocation = pickupLocation
	claim.Donor = catalog.Person{Name: donorName, Email: donorEmail, PhotoURL: donorPhotoURL}
	claim.CreatedAt = now

	if _, err := tx.ExecContext(ctx, `
		insert into food_requests (id, offer_id, requester_name, requester_email, requester_photo_url,
			note, expected_pickup_at, offer_name, offer_image_url, pickup_location,
			donor_name, donor_email, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, claim.ID, claim.OfferID, claim.Requester.Name, claim.Requester.Email, claim.Requester.PhotoURL,
		claim.Note, nullableTime(claim.ExpectedPickupAt), claim.OfferName, claim.OfferImageURL,
		claim.PickupLocation, claim.Donor.Name, claim.Donor.Email, claim.CreatedAt); err != nil {
		return catalog.Claim{}, err
	}

	// Conditioned on the current status: a concurrent claim that already
	// won turns this into a zero-row update and the insert rolls back.
	res, err := tx.ExecContext(ctx, `
		update foods set status=$2, updated_at=$3 where id=$1 and status=$4
	`, offerID, string(catalog.StatusRequested), now, string(catalog.StatusAvailable))
	if err != nil {
		return catalog.Claim{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return catalog.Claim{}, err
	}
	if affected == 0 {
		return catalog.Claim{}, catalog.ErrAlreadyRequested
	}

	if err := tx.Commit(); err != nil {
		return catalog.Claim{}, err
	}
	return claim, nil
}

func (s *Store) ListClaimsByRequester(ctx context.Context, email string) ([]catalog.Claim, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, offer_id, requester_name, requester_email, requester_photo_url,
			note, expected_pickup_at, offer_name, offer_image_url, pickup_location,
			donor_name, donor_email, created_at
		from food_requests
		where lower(requester_email)=lower($1)
		order by id asc
	`, strings.TrimSpace(email))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []catalog.Claim
	for rows.Next() {
		var c catalog.Claim
		var expected sql.NullTime
		if err := rows.Scan(&c.ID, &c.OfferID, &c.Requester.Name, &c.Requester.Email,
			&c.Requester.PhotoURL, &c.Note, &expected, &c.OfferName, &c.OfferImageURL,
			&c.PickupLocation, &c.Donor.Name, &c.Donor.Email, &c.CreatedAt); err != nil {
			return nil, err
		}
		if expected.Valid {
			c.ExpectedPickupAt = expected.Time
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOffer(row rowScanner) (catalog.Offer, error) {
	var o catalog.Offer
	var status string
	err := row.Scan(&o.ID, &o.Name, &o.ImageURL, &o.Quantity, &o.PickupLocation,
		&o.ExpiresAt, &o.Notes, &o.Donor.Name, &o.Donor.Email, &o.Donor.PhotoURL,
		&status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return catalog.Offer{}, err
	}
	o.Status = catalog.Status(status)
	return o, nil
}

func (s *Store) listOffers(ctx context.Context, query string, args ...any) ([]catalog.Offer, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []catalog.Offer
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, offer)
	}
	return res, rows.Err()
}

func escapeLike(term string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(term)
}

func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
