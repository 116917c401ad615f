package handler

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/xenking/coupon-service/internal/domain/coupon"
)

// Apply applies a coupon to the posted basket.
//
// 200 carries the discounted basket, 304 means the coupon exists but does not
// apply, 404 means the code is unknown and 422 means the basket is invalid.
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := decodeApplyRequest(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	ctx := r.Context()
	res, err := h.applier.Apply(ctx, coupon.Basket{Value: *req.Basket.Value}, req.Code)
	if err != nil {
		h.internalError(w, r, "apply coupon", err)
		return
	}

	switch res.Outcome {
	case coupon.OutcomeApplied:
		writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
			encodeBasket(e, res.Basket)
		})
	case coupon.OutcomeNotApplied:
		w.WriteHeader(http.StatusNotModified)
	case coupon.OutcomeCouponNotFound:
		writeError(w, http.StatusNotFound, "coupon not found")
	case coupon.OutcomeInvalidBasket:
		writeError(w, http.StatusUnprocessableEntity, "basket value must not be negative")
	default:
		h.internalError(w, r, "apply coupon", errors.Errorf("unexpected outcome %s", res.Outcome))
	}
}

// Create registers a coupon and returns its stored code.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := decodeCreateRequest(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	if !req.Discount.IsPositive() || !req.MinBasketValue.IsPositive() {
		writeError(w, http.StatusBadRequest, "discount and minBasketValue must be positive")
		return
	}

	res, err := h.creator.Create(r.Context(), coupon.NewCoupon{
		Code:           req.Code,
		Discount:       *req.Discount,
		MinBasketValue: *req.MinBasketValue,
	})
	switch {
	case errors.Is(err, coupon.ErrInvalidCoupon):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.internalError(w, r, "create coupon", err)
		return
	}

	if res.Status == coupon.StatusDuplicate {
		writeError(w, http.StatusConflict, "coupon "+res.Coupon.Code+" already exists")
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Str(res.Coupon.Code)
		e.ObjEnd()
	})
}

// ListCoupons returns the coupons matching the requested codes in request
// order. Codes come from a {"codes": [...]} body or from repeated ?code=
// parameters, which may also be comma separated.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req lookupRequest
	if len(bytes.TrimSpace(data)) > 0 {
		if req, err = decodeLookupRequest(data); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	} else if params, ok := r.URL.Query()["code"]; ok {
		req.Codes = lo.FlatMap(params, func(p string, _ int) []string {
			return strings.Split(p, ",")
		})
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	found, err := h.finder.FindAllByCodes(r.Context(), req.Codes)
	if err != nil {
		h.internalError(w, r, "find coupons", err)
		return
	}

	status := http.StatusOK
	if len(found) == 0 {
		status = http.StatusNotFound
	}
	writeJSON(w, status, func(e *jx.Encoder) {
		encodeCoupons(e, found)
	})
}

// GetCoupon returns a single coupon.
func (h *Handler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	c, ok, err := h.finder.FindByCode(r.Context(), chi.URLParam(r, "code"))
	switch {
	case err != nil:
		h.internalError(w, r, "find coupon", err)
	case !ok:
		writeError(w, http.StatusNotFound, "coupon not found")
	default:
		writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
			encodeCoupon(e, c)
		})
	}
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	zctx.From(r.Context()).Error("Request failed",
		zap.String("op", op),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := lo.Map(verrs, func(fe validator.FieldError, _ int) string {
		// Drop the request struct name.
		_, field, _ := strings.Cut(fe.Namespace(), ".")
		return field + ": " + fe.Tag()
	})
	return strings.Join(msgs, "; ")
}
