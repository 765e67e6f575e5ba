package apk

import (
	"errors"
	"regexp"

	"github.com/pithecene-io/playdl/apk/axml"
)

// stampMetaData matches meta-data names injected by the store and by
// package signing stamps.
var stampMetaData = regexp.MustCompile(`^com\.android\.(stamp|vending)\.`)

// splitTypeAttrs are manifest attributes declaring split types.
var splitTypeAttrs = []string{"requiredSplitTypes", "splitTypes"}

// PatchManifest strips split installation constraints from doc so the
// merged package installs on its own:
//   - isSplitRequired and extractNativeLibs from manifest and application
//   - requiredSplitTypes and splitTypes from manifest
//   - application meta-data whose android:name is a store or stamp key
//
// Patching an already patched manifest changes nothing.
func PatchManifest(doc *axml.Document) error {
	root := doc.Root()
	if root == nil || doc.NameOf(root) != axml.ElementManifest {
		return errors.New("apk: manifest root element missing")
	}
	app := doc.Child(root, axml.ElementApplication)

	byID := func(a axml.Attribute) bool {
		id := doc.ResourceID(a)
		return id == axml.AttrIDIsSplitRequired || id == axml.AttrIDExtractNativeLibs
	}
	root.RemoveAttrs(byID)
	if app != nil {
		app.RemoveAttrs(byID)
	}

	root.RemoveAttrs(func(a axml.Attribute) bool {
		name := doc.AttrName(a)
		for _, n := range splitTypeAttrs {
			if name == n {
				return true
			}
		}
		return false
	})

	if app != nil {
		app.RemoveChildren(func(e *axml.Element) bool {
			if doc.NameOf(e) != axml.ElementMetaData {
				return false
			}
			name, ok := e.Attr(func(a axml.Attribute) bool { return doc.ResourceID(a) == axml.AttrIDName })
			return ok && stampMetaData.MatchString(doc.StringValue(name))
		})
	}
	return nil
}
