// Package dbread is the correlator's read-only view of the SQLite database
// the central ingestion side persists agent reports into (§6). It adapts
// the agent-side queue package's WAL-mode sqlite/database-sql pattern to a
// read path: open, query, no schema ownership.
package dbread

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fieldmesh/beacon/internal/correlate"
	"github.com/fieldmesh/beacon/internal/geo"
	_ "modernc.org/sqlite" // register "sqlite" driver with database/sql
)

// DB is a read-only handle onto the correlator's input database.
type DB struct {
	sql *sql.DB
}

// Open opens the SQLite database at path in read-only mode. It does not
// create or migrate schema: the database is expected to already contain the
// MacAddresses and Metadata tables described in §6.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, fmt.Errorf("dbread: open %q: %w", path, err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("dbread: open %q: %w", path, err)
	}
	return &DB{sql: sqlDB}, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.sql.Close()
}

// MacAddressRow is one row of the MacAddresses table.
type MacAddressRow struct {
	ID          int64
	MacAddress  string
	Rssi        float64
	Std         float64
	Mean        float64
	FirstSeen   int64
	LastSeen    int64
	ServiceUUID uint16
	CompanyID   uint16
	Random      bool
	AntennaID   int64
}

// MacAddresses returns every row of the MacAddresses table, ordered by ID
// (insertion order), which the correlator relies on as the "input order"
// tie-break in FindEnd.
func (db *DB) MacAddresses(ctx context.Context) ([]MacAddressRow, error) {
	rows, err := db.sql.QueryContext(ctx, `
		SELECT Id, MacAddress, Rssi, Std, Mean, FirstSeen, LastSeen,
		       ServiceUUID, CompanyId, Random, AntennaId
		FROM   MacAddresses
		ORDER  BY Id`)
	if err != nil {
		return nil, fmt.Errorf("dbread: query MacAddresses: %w", err)
	}
	defer rows.Close()

	var out []MacAddressRow
	for rows.Next() {
		var r MacAddressRow
		if err := rows.Scan(&r.ID, &r.MacAddress, &r.Rssi, &r.Std, &r.Mean,
			&r.FirstSeen, &r.LastSeen, &r.ServiceUUID, &r.CompanyID, &r.Random, &r.AntennaID); err != nil {
			return nil, fmt.Errorf("dbread: scan MacAddresses row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dbread: iterate MacAddresses: %w", err)
	}
	return out, nil
}

// MacAddressesByMAC returns every row whose MacAddress is in macs, in the
// same order as MacAddresses.
func (db *DB) MacAddressesByMAC(ctx context.Context, macs []string) ([]MacAddressRow, error) {
	all, err := db.MacAddresses(ctx)
	if err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(macs))
	for _, m := range macs {
		want[m] = true
	}
	var out []MacAddressRow
	for _, r := range all {
		if want[r.MacAddress] {
			out = append(out, r)
		}
	}
	return out, nil
}

// Locate implements correlate.AntennaLocator: it returns the coordinates of
// the most recent Metadata row for antennaID at or before at, or a
// *correlate.LookupError if no such row exists.
func (db *DB) Locate(antennaID int64, at int64) (geo.Point, error) {
	var p geo.Point
	row := db.sql.QueryRow(`
		SELECT Latitude, Longitude
		FROM   Metadata
		WHERE  AntennaId = ? AND Timestamp <= ?
		ORDER  BY Timestamp DESC
		LIMIT  1`, antennaID, at)

	if err := row.Scan(&p.Lat, &p.Lng); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return geo.Point{}, &correlate.LookupError{AntennaID: antennaID, At: at}
		}
		return geo.Point{}, fmt.Errorf("dbread: locate antenna %d at t=%d: %w", antennaID, at, err)
	}
	return p, nil
}

// AntennaLocator adapts Locate to the correlate.AntennaLocator function
// type.
func (db *DB) AntennaLocator() correlate.AntennaLocator {
	return func(antennaID int64, at int64) (geo.Point, error) {
		return db.Locate(antennaID, at)
	}
}

// ToFingerprint converts a persisted row into the correlate package's
// mutable arena representation. The caller is responsible for assigning
// distinct, stable IDs (the row's ID column is reused directly).
func (r MacAddressRow) ToFingerprint() *correlate.Fingerprint {
	fp := correlate.NewFingerprint(int(r.ID))
	fp.MAC = macBytes(r.MacAddress)
	fp.Random = r.Random
	fp.FirstSeen = r.FirstSeen
	fp.LastSeen = r.LastSeen
	fp.ServiceUUID = r.ServiceUUID
	fp.CompanyID = r.CompanyID
	fp.RSSI = r.Rssi
	fp.RSSIMean = r.Mean
	fp.RSSIStd = r.Std
	fp.AntennaID = r.AntennaID
	return fp
}

// macBytes parses the reversed-byte-order colon-separated MAC string format
// used throughout this project (see codec.MacString) back into raw bytes.
// A malformed string yields the zero MAC rather than an error: display
// formatting is not security- or correctness-critical for grouping rows
// that already carry a distinct integer ID.
func macBytes(s string) [6]byte {
	var mac [6]byte
	var parts [6]string
	n := 0
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ':' {
			if n < 6 {
				parts[n] = s[start:i]
			}
			n++
			start = i + 1
		}
	}
	if n != 6 {
		return mac
	}
	for i := 0; i < 6; i++ {
		b, err := parseHexByte(parts[5-i])
		if err != nil {
			return [6]byte{}
		}
		mac[i] = b
	}
	return mac
}

func parseHexByte(s string) (byte, error) {
	if len(s) != 2 {
		return 0, fmt.Errorf("dbread: malformed mac octet %q", s)
	}
	hi, err := hexNibble(s[0])
	if err != nil {
		return 0, err
	}
	lo, err := hexNibble(s[1])
	if err != nil {
		return 0, err
	}
	return hi<<4 | lo, nil
}

func hexNibble(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	default:
		return 0, fmt.Errorf("dbread: invalid hex digit %q", c)
	}
}
