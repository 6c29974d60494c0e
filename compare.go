// This file contains the canonical ordering of BSON values used to compare
// sort keys coming from different shards.

package clustercursor

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/globalsign/mgo/bson"
)

// Canonical type ranks, values of different types are ordered by these first.
const (
	rankMinKey    = -1
	rankUndefined = 0
	rankNull      = 5
	rankNumber    = 10
	rankString    = 15
	rankObject    = 20
	rankArray     = 25
	rankBinData   = 30
	rankObjectID  = 35
	rankBool      = 40
	rankDate      = 45
	rankTimestamp = 47
	rankRegEx     = 50
	rankDBPointer = 55
	rankCode      = 60
	rankMaxKey    = 127
	rankUnknown   = 200
)

// canonicalRank returns the canonical type rank of v.
func canonicalRank(v interface{}) int {
	switch {
	case v == nil:
		return rankNull
	case v == bson.MinKey:
		return rankMinKey
	case v == bson.MaxKey:
		return rankMaxKey
	case v == bson.Undefined:
		return rankUndefined
	}

	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
		float32, float64, bson.Decimal128:
		return rankNumber
	case string, bson.Symbol:
		return rankString
	case bson.D, bson.M, map[string]interface{}, bson.RawD:
		return rankObject
	case []interface{}:
		return rankArray
	case []byte, bson.Binary:
		return rankBinData
	case bson.ObjectId:
		return rankObjectID
	case bool:
		return rankBool
	case time.Time:
		return rankDate
	case bson.MongoTimestamp:
		return rankTimestamp
	case bson.RegEx:
		return rankRegEx
	case bson.DBPointer:
		return rankDBPointer
	case bson.JavaScript:
		return rankCode
	}
	return rankUnknown
}

// compareValues compares 2 BSON values by the database's canonical ordering.
// Returns a negative number if a < b, 0 if a == b and a positive number if a > b.
func compareValues(a, b interface{}) int {
	ra, rb := canonicalRank(a), canonicalRank(b)
	if ra != rb {
		return compareInts(int64(ra), int64(rb))
	}

	switch ra {
	case rankMinKey, rankMaxKey, rankUndefined, rankNull:
		return 0
	case rankNumber:
		return compareNumbers(a, b)
	case rankString:
		return strings.Compare(stringOf(a), stringOf(b))
	case rankObject:
		return compareDocs(docOf(a), docOf(b))
	case rankArray:
		return compareArrays(a.([]interface{}), b.([]interface{}))
	case rankBinData:
		return compareBinary(binaryOf(a), binaryOf(b))
	case rankObjectID:
		return strings.Compare(string(a.(bson.ObjectId)), string(b.(bson.ObjectId)))
	case rankBool:
		return compareBools(a.(bool), b.(bool))
	case rankDate:
		ta, tb := a.(time.Time), b.(time.Time)
		switch {
		case ta.Before(tb):
			return -1
		case ta.After(tb):
			return 1
		}
		return 0
	case rankTimestamp:
		return compareUints(uint64(a.(bson.MongoTimestamp)), uint64(b.(bson.MongoTimestamp)))
	case rankRegEx:
		ea, eb := a.(bson.RegEx), b.(bson.RegEx)
		if c := strings.Compare(ea.Pattern, eb.Pattern); c != 0 {
			return c
		}
		return strings.Compare(ea.Options, eb.Options)
	case rankDBPointer:
		pa, pb := a.(bson.DBPointer), b.(bson.DBPointer)
		if c := compareInts(int64(len(pa.Namespace)), int64(len(pb.Namespace))); c != 0 {
			return c
		}
		if c := strings.Compare(pa.Namespace, pb.Namespace); c != 0 {
			return c
		}
		return strings.Compare(string(pa.Id), string(pb.Id))
	case rankCode:
		ja, jb := a.(bson.JavaScript), b.(bson.JavaScript)
		if c := strings.Compare(ja.Code, jb.Code); c != 0 {
			return c
		}
		return compareValues(ja.Scope, jb.Scope)
	}

	// Unknown types: fall back to a stable textual order.
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func compareInts(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareUints(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareBools(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

// numberOf converts a numeric value to either an int64 (isInt=true)
// or a float64.
func numberOf(v interface{}) (i int64, f float64, isInt bool) {
	switch n := v.(type) {
	case int:
		return int64(n), 0, true
	case int8:
		return int64(n), 0, true
	case int16:
		return int64(n), 0, true
	case int32:
		return int64(n), 0, true
	case int64:
		return n, 0, true
	case uint:
		return numberOf(uint64(n))
	case uint8:
		return int64(n), 0, true
	case uint16:
		return int64(n), 0, true
	case uint32:
		return int64(n), 0, true
	case uint64:
		if n <= math.MaxInt64 {
			return int64(n), 0, true
		}
		return 0, float64(n), false
	case float32:
		return 0, float64(n), false
	case float64:
		return 0, n, false
	case bson.Decimal128:
		f, err := strconv.ParseFloat(n.String(), 64)
		if err != nil {
			return 0, math.NaN(), false
		}
		return 0, f, false
	}
	return 0, math.NaN(), false
}

// compareNumbers compares numbers of possibly different Go types.
// NaN sorts before every other number.
func compareNumbers(a, b interface{}) int {
	ia, fa, aInt := numberOf(a)
	ib, fb, bInt := numberOf(b)
	switch {
	case aInt && bInt:
		return compareInts(ia, ib)
	case aInt:
		return compareIntFloat(ia, fb)
	case bInt:
		return -compareIntFloat(ib, fa)
	}

	aNaN, bNaN := math.IsNaN(fa), math.IsNaN(fb)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return -1
	case bNaN:
		return 1
	case fa < fb:
		return -1
	case fa > fb:
		return 1
	}
	return 0
}

// twoTo63 is 2^63, the first float64 above math.MaxInt64.
const twoTo63 = float64(1 << 63)

// compareIntFloat compares i and f exactly, without converting i to float64
// which would round integers above 2^53.
func compareIntFloat(i int64, f float64) int {
	switch {
	case math.IsNaN(f):
		return 1
	case f >= twoTo63:
		return -1
	case f < -twoTo63:
		return 1
	}

	t := math.Trunc(f)
	if c := compareInts(i, int64(t)); c != 0 {
		return c
	}
	switch frac := f - t; {
	case frac > 0:
		return -1
	case frac < 0:
		return 1
	}
	return 0
}

func stringOf(v interface{}) string {
	if s, ok := v.(bson.Symbol); ok {
		return string(s)
	}
	return v.(string)
}

// docOf returns the ordered form of a document value.
// Maps have no order, their keys are sorted.
func docOf(v interface{}) bson.D {
	switch d := v.(type) {
	case bson.D:
		return d
	case bson.RawD:
		doc := make(bson.D, 0, len(d))
		for _, e := range d {
			var value interface{}
			if err := e.Value.Unmarshal(&value); err != nil {
				value = nil
			}
			doc = append(doc, bson.DocElem{Name: e.Name, Value: value})
		}
		return doc
	}

	m := reflect.ValueOf(v)
	keys := make([]string, 0, m.Len())
	for _, k := range m.MapKeys() {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)
	doc := make(bson.D, 0, len(keys))
	for _, k := range keys {
		doc = append(doc, bson.DocElem{Name: k, Value: m.MapIndex(reflect.ValueOf(k)).Interface()})
	}
	return doc
}

// compareDocs compares 2 documents element by element: first the canonical
// type of the values, then the field names, then the values.
func compareDocs(a, b bson.D) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		ea, eb := a[i], b[i]
		if c := compareInts(int64(canonicalRank(ea.Value)), int64(canonicalRank(eb.Value))); c != 0 {
			return c
		}
		if c := strings.Compare(ea.Name, eb.Name); c != 0 {
			return c
		}
		if c := compareValues(ea.Value, eb.Value); c != 0 {
			return c
		}
	}
	return compareInts(int64(len(a)), int64(len(b)))
}

func compareArrays(a, b []interface{}) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := compareValues(a[i], b[i]); c != 0 {
			return c
		}
	}
	return compareInts(int64(len(a)), int64(len(b)))
}

func binaryOf(v interface{}) bson.Binary {
	if b, ok := v.([]byte); ok {
		return bson.Binary{Kind: 0x00, Data: b}
	}
	return v.(bson.Binary)
}

// compareBinary orders binary data by length, then subtype, then content.
func compareBinary(a, b bson.Binary) int {
	if c := compareInts(int64(len(a.Data)), int64(len(b.Data))); c != 0 {
		return c
	}
	if c := compareInts(int64(a.Kind), int64(b.Kind)); c != 0 {
		return c
	}
	return bytes.Compare(a.Data, b.Data)
}
