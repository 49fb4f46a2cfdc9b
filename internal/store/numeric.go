package store

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
)

// The store keeps numbers as arbitrary-precision decimal strings. Backup
// files must stay portable, so items are converted to a plain JSON tree
// where every number is a json.Number carrying the exact decimal text;
// no language-native float ever touches the backup format. String, number,
// bool, map and list attributes round-trip exactly. Set attributes come
// back as lists and binary attributes as their base64 text; the
// application schema uses neither.

// CanonicalizeItem converts a native item into its portable representation
func CanonicalizeItem(item Item) map[string]interface{} {
	out := make(map[string]interface{}, len(item))
	for name, av := range item {
		out[name] = canonicalizeValue(av)
	}
	return out
}

func canonicalizeValue(av *dynamodb.AttributeValue) interface{} {
	switch {
	case av == nil:
		return nil
	case av.NULL != nil && *av.NULL:
		return nil
	case av.S != nil:
		return *av.S
	case av.N != nil:
		return json.Number(*av.N)
	case av.BOOL != nil:
		return *av.BOOL
	case av.B != nil:
		return base64.StdEncoding.EncodeToString(av.B)
	case av.M != nil:
		m := make(map[string]interface{}, len(av.M))
		for k, v := range av.M {
			m[k] = canonicalizeValue(v)
		}
		return m
	case av.L != nil:
		l := make([]interface{}, len(av.L))
		for i, v := range av.L {
			l[i] = canonicalizeValue(v)
		}
		return l
	case av.SS != nil:
		l := make([]interface{}, len(av.SS))
		for i, v := range av.SS {
			l[i] = *v
		}
		return l
	case av.NS != nil:
		l := make([]interface{}, len(av.NS))
		for i, v := range av.NS {
			l[i] = json.Number(*v)
		}
		return l
	case av.BS != nil:
		l := make([]interface{}, len(av.BS))
		for i, v := range av.BS {
			l[i] = base64.StdEncoding.EncodeToString(v)
		}
		return l
	default:
		return nil
	}
}

// DenormalizeItem converts a portable representation back into a native item
func DenormalizeItem(data map[string]interface{}) (Item, error) {
	item := make(Item, len(data))
	for name, v := range data {
		av, err := denormalizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		item[name] = av
	}
	return item, nil
}

func denormalizeValue(v interface{}) (*dynamodb.AttributeValue, error) {
	switch val := v.(type) {
	case nil:
		return NullAttr(), nil
	case string:
		return StringAttr(val), nil
	case json.Number:
		return NumberAttr(val.String()), nil
	case bool:
		return BoolAttr(val), nil
	case float64:
		// Only reached when the payload was decoded without UseNumber
		return NumberAttr(strconv.FormatFloat(val, 'g', -1, 64)), nil
	case int:
		return NumberAttr(strconv.Itoa(val)), nil
	case int64:
		return NumberAttr(strconv.FormatInt(val, 10)), nil
	case map[string]interface{}:
		m := make(map[string]*dynamodb.AttributeValue, len(val))
		for k, mv := range val {
			av, err := denormalizeValue(mv)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			m[k] = av
		}
		return &dynamodb.AttributeValue{M: m}, nil
	case []interface{}:
		l := make([]*dynamodb.AttributeValue, len(val))
		for i, lv := range val {
			av, err := denormalizeValue(lv)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			l[i] = av
		}
		return &dynamodb.AttributeValue{L: l}, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// CopyItem deep-copies a native item
func CopyItem(item Item) Item {
	out := make(Item, len(item))
	for name, av := range item {
		out[name] = copyAttributeValue(av)
	}
	return out
}

func copyAttributeValue(av *dynamodb.AttributeValue) *dynamodb.AttributeValue {
	if av == nil {
		return nil
	}
	out := &dynamodb.AttributeValue{}
	switch {
	case av.S != nil:
		out.S = aws.String(*av.S)
	case av.N != nil:
		out.N = aws.String(*av.N)
	case av.BOOL != nil:
		out.BOOL = aws.Bool(*av.BOOL)
	case av.NULL != nil:
		out.NULL = aws.Bool(*av.NULL)
	case av.B != nil:
		out.B = append([]byte(nil), av.B...)
	case av.M != nil:
		m := make(map[string]*dynamodb.AttributeValue, len(av.M))
		for k, v := range av.M {
			m[k] = copyAttributeValue(v)
		}
		out.M = m
	case av.L != nil:
		l := make([]*dynamodb.AttributeValue, len(av.L))
		for i, v := range av.L {
			l[i] = copyAttributeValue(v)
		}
		out.L = l
	case av.SS != nil:
		ss := make([]*string, len(av.SS))
		for i, v := range av.SS {
			ss[i] = aws.String(*v)
		}
		out.SS = ss
	case av.NS != nil:
		ns := make([]*string, len(av.NS))
		for i, v := range av.NS {
			ns[i] = aws.String(*v)
		}
		out.NS = ns
	case av.BS != nil:
		bs := make([][]byte, len(av.BS))
		for i, v := range av.BS {
			bs[i] = append([]byte(nil), v...)
		}
		out.BS = bs
	}
	return out
}
