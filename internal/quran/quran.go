// Package quran provides read-only lookups over the fixed 30-juz partition of the Quran.
package quran

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// JuzCount is the number of fixed recitation units.
	JuzCount = 30
	// SurahCount is the number of surahs.
	SurahCount = 114
	// TotalAyahs is the number of ayahs across all surahs.
	TotalAyahs = 6236
)

var (
	// ErrInvalidHalf is returned for half selectors other than first/second.
	ErrInvalidHalf = errors.New("invalid juz half")
	// ErrInvalidJuz is returned for juz numbers outside 1..30.
	ErrInvalidJuz = errors.New("invalid juz number")
)

// AyahKey addresses a single ayah.
type AyahKey struct {
	Surah int
	Ayah  int
}

func (k AyahKey) String() string {
	return fmt.Sprintf("%d:%d", k.Surah, k.Ayah)
}

// Half selects a half of a juz. HalfNone means the whole juz.
type Half int

const (
	HalfNone   Half = 0
	HalfFirst  Half = 1
	HalfSecond Half = 2
)

func (h Half) String() string {
	switch h {
	case HalfFirst:
		return "first"
	case HalfSecond:
		return "second"
	default:
		return ""
	}
}

// ParseHalf accepts "", "first", "second" and the persisted forms "1" and "2".
func ParseHalf(s string) (Half, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "0":
		return HalfNone, nil
	case "first", "1":
		return HalfFirst, nil
	case "second", "2":
		return HalfSecond, nil
	default:
		return HalfNone, fmt.Errorf("%w: %q", ErrInvalidHalf, s)
	}
}

// HalfFromInt converts a nullable persisted half column.
func HalfFromInt(v *int) (Half, error) {
	if v == nil {
		return HalfNone, nil
	}
	return ParseHalf(strconv.Itoa(*v))
}

// Juz describes one of the 30 fixed units.
type Juz struct {
	Number int
	Start  AyahKey
	End    AyahKey
}

// SurahAyahCount returns the number of ayahs in the surah, or 0 when out of range.
func SurahAyahCount(surah int) int {
	if surah < 1 || surah > SurahCount {
		return 0
	}
	return surahAyahCount[surah-1]
}

// JuzInfo returns the bounds of juz n.
func JuzInfo(n int) (Juz, error) {
	if n < 1 || n > JuzCount {
		return Juz{}, fmt.Errorf("%w: %d", ErrInvalidJuz, n)
	}
	b := juzBounds[n-1]
	return Juz{Number: n, Start: b[0], End: b[1]}, nil
}

// AyahsInRange lists every ayah from start to end inclusive.
func AyahsInRange(start, end AyahKey) []AyahKey {
	var out []AyahKey
	for s := start.Surah; s <= end.Surah; s++ {
		first := 1
		if s == start.Surah {
			first = start.Ayah
		}
		last := SurahAyahCount(s)
		if s == end.Surah {
			last = end.Ayah
		}
		for a := first; a <= last; a++ {
			out = append(out, AyahKey{Surah: s, Ayah: a})
		}
	}
	return out
}

// JuzAyahs returns the ayahs of juz n, or one half of them.
// A half bisects the list at len/2, so the second half takes the odd ayah.
func JuzAyahs(n int, half Half) ([]AyahKey, error) {
	info, err := JuzInfo(n)
	if err != nil {
		return nil, err
	}
	all := AyahsInRange(info.Start, info.End)
	mid := len(all) / 2
	switch half {
	case HalfNone:
		return all, nil
	case HalfFirst:
		return all[:mid], nil
	case HalfSecond:
		return all[mid:], nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidHalf, half)
	}
}

// Distribute partitions items into n ordered chunks whose sizes differ by at most one.
// The first len(items)%n chunks get the extra item. Chunks are empty when items run out.
func Distribute[T any](items []T, n int) [][]T {
	if n <= 0 {
		return nil
	}
	base := len(items) / n
	extra := len(items) % n
	out := make([][]T, n)
	idx := 0
	for i := 0; i < n; i++ {
		size := base
		if i < extra {
			size++
		}
		out[i] = items[idx : idx+size]
		idx += size
	}
	return out
}

// IsFatiha reports whether the ayah belongs to the opening surah.
func IsFatiha(k AyahKey) bool {
	return k.Surah == 1
}

// Fatiha returns the seven ayahs of the opening surah.
func Fatiha() []AyahKey {
	return AyahsInRange(AyahKey{1, 1}, AyahKey{1, SurahAyahCount(1)})
}
