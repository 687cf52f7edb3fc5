package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Store reads scoring profiles from PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a profile store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const profileColumns = `
	user_id, gender, looking_for,
	COALESCE(date_part('year', age(birthdate))::int, 0),
	career, hobbies, location, zodiac, latitude, longitude`

// Get returns the profile for a user. Returns ErrNotFound if the user has
// no profile row.
func (s *Store) Get(ctx context.Context, userID string) (*Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1`

	p, err := scanProfile(s.db.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("profile: get %s: %w", userID, err)
	}
	return p, nil
}

// CandidateQuery describes the pool query for a seeker.
type CandidateQuery struct {
	SeekerID  string
	Gender    string // candidate gender to match, "" = any
	MinAge    int    // 0 = unbounded
	MaxAge    int    // 0 = unbounded
	PoolSize  int
	ExcludeID []string // user ids to exclude at the SQL level
}

// Candidates returns profile-complete candidates matching the query, most
// recently updated first. If the strict query returns nothing, the
// profile-completeness requirement is relaxed and the query retried with a
// doubled pool.
func (s *Store) Candidates(ctx context.Context, q CandidateQuery) ([]*Profile, error) {
	rows, err := s.candidates(ctx, q, true, q.PoolSize)
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 {
		return rows, nil
	}
	// Fallback: relax completeness, widen the pool.
	return s.candidates(ctx, q, false, q.PoolSize*2)
}

func (s *Store) candidates(ctx context.Context, q CandidateQuery, completeOnly bool, pool int) ([]*Profile, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	where = append(where, "user_id <> "+arg(q.SeekerID))
	if completeOnly {
		where = append(where, "is_complete = TRUE")
	}
	if q.Gender != "" {
		where = append(where, "gender = "+arg(q.Gender))
	}
	// Age filters translate to a birthdate window: someone aged MaxAge was
	// born no earlier than (MaxAge+1) years ago.
	if q.MaxAge > 0 {
		cutoff := time.Now().AddDate(-(q.MaxAge + 1), 0, 0)
		where = append(where, "birthdate > "+arg(cutoff))
	}
	if q.MinAge > 0 {
		cutoff := time.Now().AddDate(-q.MinAge, 0, 0)
		where = append(where, "birthdate <= "+arg(cutoff))
	}
	if len(q.ExcludeID) > 0 {
		where = append(where, "NOT (user_id = ANY("+arg(pq.Array(q.ExcludeID))+"))")
	}

	query := `SELECT ` + profileColumns + `
		FROM profiles
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY updated_at DESC
		LIMIT ` + arg(pool)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("profile: candidates: %w", err)
	}
	defer rows.Close()

	var out []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("profile: scan candidate: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProfile(row rowScanner) (*Profile, error) {
	var (
		p       Profile
		hobbies sql.NullString
		career  sql.NullString
		loc     sql.NullString
		zodiac  sql.NullString
		looking sql.NullString
		gender  sql.NullString
		lat     sql.NullFloat64
		lon     sql.NullFloat64
	)
	err := row.Scan(&p.UserID, &gender, &looking, &p.Age,
		&career, &hobbies, &loc, &zodiac, &lat, &lon)
	if err != nil {
		return nil, err
	}

	p.Gender = gender.String
	p.LookingFor = looking.String
	p.Career = career.String
	p.Location = loc.String
	p.Zodiac = zodiac.String
	p.Latitude = lat.Float64
	p.Longitude = lon.Float64
	if hobbies.String != "" {
		for _, h := range strings.Split(hobbies.String, ",") {
			if h = strings.TrimSpace(h); h != "" {
				p.Hobbies = append(p.Hobbies, h)
			}
		}
	}
	return &p, nil
}
