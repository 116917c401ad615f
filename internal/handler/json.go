package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/coupon-service/internal/domain/coupon"
)

// maxBodyBytes caps request bodies. Coupon payloads are tiny.
const maxBodyBytes = 64 << 10

type basketInput struct {
	Value *decimal.Decimal `json:"value" validate:"required"`
}

type applyRequest struct {
	Code   string       `json:"code" validate:"required,notblank"`
	Basket *basketInput `json:"basket" validate:"required"`
}

type createRequest struct {
	Code           string           `json:"code" validate:"required,notblank"`
	Discount       *decimal.Decimal `json:"discount" validate:"required"`
	MinBasketValue *decimal.Decimal `json:"minBasketValue" validate:"required"`
}

type lookupRequest struct {
	Codes []string `json:"codes" validate:"required"`
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	return data, nil
}

func decodeDecimal(d *jx.Decoder) (*decimal.Decimal, error) {
	switch tt := d.Next(); tt {
	case jx.Null:
		return nil, d.Null()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return nil, err
		}
		v, err := decimal.NewFromString(string(n))
		if err != nil {
			return nil, errors.Wrap(err, "parse number")
		}
		return &v, nil
	case jx.String:
		// Accepted for clients that quote amounts to keep precision.
		s, err := d.Str()
		if err != nil {
			return nil, err
		}
		v, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return nil, errors.Wrap(err, "parse number")
		}
		return &v, nil
	default:
		return nil, errors.Errorf("expected number, got %s", tt)
	}
}

func decodeOptString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func decodeBasket(d *jx.Decoder) (*basketInput, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var b basketInput
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "value":
			v, err := decodeDecimal(d)
			if err != nil {
				return errors.Wrap(err, "value")
			}
			b.Value = v
			return nil
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, err
	}
	return &b, nil
}

// decodeObject decodes data as a single JSON object, calling fn per key.
// Anything after the object is rejected.
func decodeObject(data []byte, fn func(d *jx.Decoder, key string) error) error {
	d := jx.DecodeBytes(data)
	if err := d.Obj(fn); err != nil {
		return err
	}
	if err := d.Skip(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after object")
	}
	return nil
}

func decodeApplyRequest(data []byte) (applyRequest, error) {
	var req applyRequest
	err := decodeObject(data, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			req.Code, err = decodeOptString(d)
		case "basket":
			req.Basket, err = decodeBasket(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return req, err
}

func decodeCreateRequest(data []byte) (createRequest, error) {
	var req createRequest
	err := decodeObject(data, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			req.Code, err = decodeOptString(d)
		case "discount":
			req.Discount, err = decodeDecimal(d)
		case "minBasketValue":
			req.MinBasketValue, err = decodeDecimal(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return req, err
}

func decodeLookupRequest(data []byte) (lookupRequest, error) {
	var req lookupRequest
	err := decodeObject(data, func(d *jx.Decoder, key string) error {
		if key != "codes" {
			return d.Skip()
		}
		if d.Next() == jx.Null {
			return d.Null()
		}
		req.Codes = []string{}
		return d.Arr(func(d *jx.Decoder) error {
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "codes")
			}
			req.Codes = append(req.Codes, s)
			return nil
		})
	})
	return req, err
}

func encodeBasket(e *jx.Encoder, b coupon.Basket) {
	e.ObjStart()
	e.FieldStart("value")
	e.Num(jx.Num(b.Value.String()))
	e.FieldStart("appliedDiscount")
	e.Num(jx.Num(b.AppliedDiscount.String()))
	e.FieldStart("applicationSuccessful")
	e.Bool(b.ApplicationSuccessful)
	e.ObjEnd()
}

func encodeCoupon(e *jx.Encoder, c coupon.Coupon) {
	e.ObjStart()
	e.FieldStart("code")
	e.Str(c.Code)
	e.FieldStart("discount")
	e.Num(jx.Num(c.Discount.String()))
	e.FieldStart("minBasketValue")
	e.Num(jx.Num(c.MinBasketValue.String()))
	e.ObjEnd()
}

func encodeCoupons(e *jx.Encoder, cs []coupon.Coupon) {
	e.ArrStart()
	for _, c := range cs {
		encodeCoupon(e, c)
	}
	e.ArrEnd()
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("message")
		e.Str(message)
		e.ObjEnd()
	})
}
