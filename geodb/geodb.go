package geodb

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"modsecmon/ipaddresses"

	"github.com/goccy/go-json"
	"github.com/google/btree"
	"github.com/rs/zerolog"
)

// Record maps an inclusive IPv4 range to a 2-letter country code.
type Record struct {
	StartIP     uint32 `json:"StartIP"`
	EndIP       uint32 `json:"EndIP"`
	CountryCode string `json:"CountryCode"`
}

// DB maps IPv4 addresses to the country they are registered in. The zero value is not usable; use New.
type DB struct {
	logger zerolog.Logger
	fs     GeoIPFileSystem
	mu     sync.RWMutex
	tree   *btree.BTree
}

// New creates an empty DB.
func New(logger zerolog.Logger, fs GeoIPFileSystem) *DB {
	return &DB{logger: logger, fs: fs, tree: btree.New(2)}
}

// Load reads a data set previously written by Save, or produced by an export in the same JSON format.
func (db *DB) Load(path string) (err error) {
	b, err := db.fs.ReadFile(path)
	if err != nil {
		return
	}

	var data []Record
	if err = json.Unmarshal(b, &data); err != nil {
		return fmt.Errorf("decoding GeoIP data set %v: %w", path, err)
	}

	if err = db.Put(data); err != nil {
		return
	}

	db.logger.Info().Str("path", path).Int("ranges", len(data)).Msg("GeoIP data set loaded")
	return
}

// Save writes the records to path in the format Load reads.
func (db *DB) Save(path string, data []Record) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return db.fs.WriteFile(path, b)
}

// Put validates data and atomically replaces the current data set with it.
func (db *DB) Put(data []Record) (err error) {
	if err = validate(data); err != nil {
		db.logger.Err(err).Msg("Error while validating GeoIP data set")
		return
	}

	newTree := btree.New(2)
	for _, rec := range data {
		newTree.ReplaceOrInsert(treeNode{
			StartIP:     rec.StartIP,
			EndIP:       rec.EndIP,
			CountryCode: strings.TrimSpace(strings.ToUpper(rec.CountryCode)),
		})
	}

	db.mu.Lock()
	db.tree = newTree
	db.mu.Unlock()
	return
}

// Len is the number of ranges in the data set.
func (db *DB) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.tree.Len()
}

// Country returns the country code of addr, or "" when unknown.
func (db *DB) Country(addr string) (countryCode string) {
	ip, err := ipaddresses.ParseIPAddress(addr)
	if err != nil {
		return
	}

	db.mu.RLock()
	found := db.tree.Get(treeNode{StartIP: ip, EndIP: ip})
	db.mu.RUnlock()

	// The data set does not contain reserved ranges, so only other misses are worth a log line.
	if found == nil || len(found.(treeNode).CountryCode) != 2 {
		if special, _ := ipaddresses.IsSpecialPurposeAddress(addr); !special {
			db.logger.Debug().Str("ip", addr).Msg("GeoDB has no record for address")
		}
		return
	}

	countryCode = found.(treeNode).CountryCode
	return
}

func validate(data []Record) (err error) {
	sorted := make([]Record, len(data))
	copy(sorted, data)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StartIP < sorted[j].StartIP
	})

	for i, curr := range sorted {
		if curr.StartIP > curr.EndIP {
			return fmt.Errorf("GeoIP data record (%d, %d, %s) has StartIP greater than EndIP", curr.StartIP, curr.EndIP, curr.CountryCode)
		}

		if i == 0 {
			continue
		}

		prev := sorted[i-1]
		if curr.StartIP <= prev.EndIP {
			return fmt.Errorf("overlap found between data records (%d, %d, %s) and (%d, %d, %s)", prev.StartIP, prev.EndIP, prev.CountryCode, curr.StartIP, curr.EndIP, curr.CountryCode)
		}
	}
	return
}

// treeNode orders non-overlapping ranges. A single address compares equal to the range containing it.
type treeNode struct {
	StartIP     uint32
	EndIP       uint32
	CountryCode string
}

func (node treeNode) Less(other btree.Item) bool {
	return node.StartIP < other.(treeNode).StartIP && node.EndIP < other.(treeNode).EndIP
}
