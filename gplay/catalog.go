package gplay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pithecene-io/playdl/types"
)

// Validate checks that s is accepted by the service by authorizing it and
// fetching the table of contents.
func (c *Client) Validate(ctx context.Context, s types.Session) error {
	a, err := c.Authorize(ctx, s)
	if err != nil {
		return err
	}
	if _, err := c.get(ctx, a, "toc", nil); err != nil {
		c.Forget(s)
		return err
	}
	return nil
}

// Details returns the metadata for pkg. Returns ErrNotFound when the service
// has no such entry.
//
// Fragment URLs from details are usually blank: download locations are only
// handed out by Purchase.
func (c *Client) Details(ctx context.Context, s types.Session, pkg string) (*types.PackageMetadata, error) {
	a, err := c.Authorize(ctx, s)
	if err != nil {
		return nil, err
	}

	body, err := c.get(ctx, a, "details", url.Values{"doc": {pkg}})
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, pkg)
		}
		return nil, err
	}

	resp, err := decode(body)
	if err != nil {
		return nil, fmt.Errorf("gplay: details: %w", err)
	}
	doc, err := resp.path(fieldWrapperPayload, fieldPayloadDetails, fieldDetailsDoc)
	if err != nil {
		return nil, fmt.Errorf("gplay: details: %w", err)
	}
	app, err := doc.path(fieldDocDetails, fieldDetailsApp)
	if err != nil {
		return nil, fmt.Errorf("gplay: details: %w", err)
	}
	if app.str(fieldAppPackage) == "" && doc.str(fieldDocID) == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, pkg)
	}

	meta := &types.PackageMetadata{
		PackageName: app.str(fieldAppPackage),
		VersionName: app.str(fieldAppVersion),
		VersionCode: int64(app.uint(fieldAppVersionCode)),
		Free:        true,
		OfferType:   1,
	}
	if meta.PackageName == "" {
		meta.PackageName = doc.str(fieldDocID)
	}

	offers, err := doc.subs(fieldDocOffer)
	if err != nil {
		return nil, fmt.Errorf("gplay: details: %w", err)
	}
	if len(offers) > 0 {
		meta.Free = offers[0].uint(fieldOfferMicros) == 0
		if ot := offers[0].uint(fieldOfferType); ot != 0 {
			meta.OfferType = int32(ot)
		}
	}

	files, err := app.subs(fieldAppFile)
	if err != nil {
		return nil, fmt.Errorf("gplay: details: %w", err)
	}
	for _, f := range files {
		frag := types.Fragment{Size: int64(f.uint(fieldFileSize))}
		switch {
		case f.has(fieldFileSplitID):
			frag.Name = f.str(fieldFileSplitID) + ".apk"
			frag.Type = types.FragmentSplit
		case f.uint(fieldFileType) == 0:
			frag.Name = meta.PackageName + ".apk"
			frag.Type = types.FragmentBase
		default:
			frag.Name = meta.PackageName + ".patch"
			frag.Type = types.FragmentPatch
		}
		meta.Fragments = append(meta.Fragments, frag)
	}
	return meta, nil
}

// Purchase acquires the entitlement for a free package and returns its
// downloadable fragments.
func (c *Client) Purchase(ctx context.Context, s types.Session, pkg string, versionCode int64, offerType int32) ([]types.Fragment, error) {
	a, err := c.Authorize(ctx, s)
	if err != nil {
		return nil, err
	}

	params := url.Values{
		"ot":  {strconv.Itoa(int(offerType))},
		"doc": {pkg},
		"vc":  {strconv.FormatInt(versionCode, 10)},
	}
	body, err := c.post(ctx, a, "purchase", params)
	if err != nil {
		return nil, err
	}
	resp, err := decode(body)
	if err != nil {
		return nil, fmt.Errorf("gplay: purchase: %w", err)
	}
	buy, err := resp.path(fieldWrapperPayload, fieldPayloadBuy)
	if err != nil {
		return nil, fmt.Errorf("gplay: purchase: %w", err)
	}
	if tok := buy.str(fieldBuyDeliveryToken); tok != "" {
		params.Set("dtok", tok)
	}

	body, err = c.get(ctx, a, "delivery", params)
	if err != nil {
		return nil, err
	}
	resp, err = decode(body)
	if err != nil {
		return nil, fmt.Errorf("gplay: delivery: %w", err)
	}
	delivery, err := resp.path(fieldWrapperPayload, fieldPayloadDelivery)
	if err != nil {
		return nil, fmt.Errorf("gplay: delivery: %w", err)
	}
	if !delivery.has(fieldDeliveryData) {
		return nil, fmt.Errorf("gplay: delivery: no delivery data for %s (status %d)", pkg, delivery.uint(fieldDeliveryStatus))
	}
	data, err := delivery.sub(fieldDeliveryData)
	if err != nil {
		return nil, fmt.Errorf("gplay: delivery: %w", err)
	}
	frags, err := fragmentsFromDelivery(pkg, data)
	if err != nil {
		return nil, fmt.Errorf("gplay: delivery: %w", err)
	}
	if len(frags) == 0 {
		return nil, fmt.Errorf("gplay: delivery: no files for %s", pkg)
	}
	return frags, nil
}

func (c *Client) get(ctx context.Context, a *Auth, endpoint string, params url.Values) ([]byte, error) {
	u := c.endpoints.FDFE + "/" + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("gplay: create request: %w", err)
	}
	req.Header = c.fdfeHeaders(a)
	return c.do(req, endpoint)
}

func (c *Client) post(ctx context.Context, a *Auth, endpoint string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.FDFE+"/"+endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("gplay: create request: %w", err)
	}
	req.Header = c.fdfeHeaders(a)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	return c.do(req, endpoint)
}
