// Package gplay is a minimal client for the app distribution service: token
// exchange, device checkin, app details, purchase and delivery.
//
// It is not a catalog client. It implements just enough of the protocol to
// validate a credential and turn a package id into downloadable fragments.
package gplay

import (
	"strings"

	"golang.org/x/text/language"
)

// Fixed client identity sent with every auth request.
const (
	GMSPackage      = "com.google.android.gms"
	VendingPackage  = "com.android.vending"
	CallerSignature = "38918a453d07199354f8b19af05ec6562ced5788"

	PlayServicesVersion = 19629032
	SDKVersion          = 28
)

// Default endpoints.
const (
	DefaultAuthURL    = "https://android.clients.google.com/auth"
	DefaultCheckinURL = "https://android.clients.google.com/checkin"
	DefaultFDFEURL    = "https://android.clients.google.com/fdfe"
)

// PlayStoreScope is the OAuth scope of the bearer token used for fdfe calls.
const PlayStoreScope = "oauth2:https://www.googleapis.com/auth/googleplay"

// LocaleFields returns the lang and device_country form values for tag:
// a hyphenated language tag and the lowercase region code. The country is
// empty unless the tag names a region; an inferred region is not sent.
func LocaleFields(tag language.Tag) (lang, country string) {
	lang = strings.ReplaceAll(tag.String(), "_", "-")
	region, conf := tag.Region()
	if conf != language.Exact {
		return lang, ""
	}
	return lang, strings.ToLower(region.String())
}
