package gplay

import (
	"strconv"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/pithecene-io/playdl/types"
)

// Field numbers of the response messages the client reads.
const (
	fieldCheckinAndroidID protowire.Number = 7

	fieldWrapperPayload protowire.Number = 1

	fieldPayloadDetails            protowire.Number = 2
	fieldPayloadBuy                protowire.Number = 4
	fieldPayloadDelivery           protowire.Number = 21
	fieldPayloadUploadDeviceConfig protowire.Number = 28

	fieldDetailsDoc protowire.Number = 4

	fieldDocID      protowire.Number = 1
	fieldDocTitle   protowire.Number = 5
	fieldDocOffer   protowire.Number = 8
	fieldDocDetails protowire.Number = 13

	fieldOfferMicros protowire.Number = 1
	fieldOfferType   protowire.Number = 8

	fieldDetailsApp protowire.Number = 1

	fieldAppVersionCode protowire.Number = 3
	fieldAppVersion     protowire.Number = 4
	fieldAppPackage     protowire.Number = 14
	fieldAppFile        protowire.Number = 17

	fieldFileType        protowire.Number = 1
	fieldFileVersionCode protowire.Number = 2
	fieldFileSize        protowire.Number = 3
	fieldFileSplitID     protowire.Number = 4

	fieldBuyDeliveryToken protowire.Number = 55

	fieldDeliveryStatus protowire.Number = 1
	fieldDeliveryData   protowire.Number = 2

	fieldDataSize           protowire.Number = 1
	fieldDataURL            protowire.Number = 3
	fieldDataAdditionalFile protowire.Number = 4
	fieldDataSplit          protowire.Number = 15

	fieldAdditionalType protowire.Number = 1
	fieldAdditionalVC   protowire.Number = 2
	fieldAdditionalSize protowire.Number = 3
	fieldAdditionalURL  protowire.Number = 4

	fieldSplitID   protowire.Number = 1
	fieldSplitSize protowire.Number = 2
	fieldSplitURL  protowire.Number = 5
)

func atoi(s string) uint64 {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// deviceConfiguration encodes the device configuration message.
func deviceConfiguration(p *types.DeviceProfile) message {
	return message(nil).
		varint(1, atoi(p.Value("TouchScreen"))).
		varint(2, atoi(p.Value("Keyboard"))).
		varint(3, atoi(p.Value("Navigation"))).
		varint(4, atoi(p.Value("ScreenLayout"))).
		boolean(5, p.Value("HasHardKeyboard") == "true").
		boolean(6, p.Value("HasFiveWayNavigation") == "true").
		varint(7, atoi(p.Value("Screen.Density"))).
		varint(8, atoi(p.Value("GL.Version"))).
		strs(9, p.List("SharedLibraries")).
		strs(10, p.List("Features")).
		strs(11, p.List("Platforms")).
		varint(12, atoi(p.Value("Screen.Width"))).
		varint(13, atoi(p.Value("Screen.Height"))).
		strs(14, p.List("Locales")).
		strs(15, p.List("GL.Extensions"))
}

// checkinRequest encodes an initial checkin for the profile.
func checkinRequest(p *types.DeviceProfile, locale string) message {
	build := message(nil).
		str(1, p.Value("Build.FINGERPRINT")).
		str(2, p.Value("Build.HARDWARE")).
		str(3, p.Value("Build.BRAND")).
		str(4, p.Value("Build.RADIO")).
		str(5, p.Value("Build.BOOTLOADER")).
		str(7, p.Value("Build.DEVICE")).
		varint(8, atoi(p.Value("Build.VERSION.SDK_INT"))).
		str(9, p.Value("Build.MODEL")).
		str(10, p.Value("Build.MANUFACTURER")).
		str(11, p.Value("Build.PRODUCT"))

	checkin := message(nil).
		embed(1, build).
		varint(2, 0).
		str(6, p.Value("CellOperator")).
		str(7, p.Value("SimOperator")).
		str(8, p.Value("Roaming")).
		varint(9, 0)

	return message(nil).
		fixed64(2, 0).
		embed(4, checkin).
		str(6, locale).
		str(12, p.Value("TimeZone")).
		varint(14, 3).
		embed(18, deviceConfiguration(p)).
		varint(20, 0)
}

// additionalFileName returns the working-area name of an additional file.
func additionalFileName(kind uint64, versionCode uint64, pkg string) string {
	prefix := "main"
	if kind == 1 {
		prefix = "patch"
	}
	return prefix + "." + strconv.FormatUint(versionCode, 10) + "." + pkg + ".obb"
}

// fragmentsFromDelivery converts app delivery data into fragments.
func fragmentsFromDelivery(pkg string, data decoded) ([]types.Fragment, error) {
	var out []types.Fragment
	if url := data.str(fieldDataURL); url != "" {
		out = append(out, types.Fragment{
			Name: pkg + ".apk",
			URL:  url,
			Size: int64(data.uint(fieldDataSize)),
			Type: types.FragmentBase,
		})
	}

	splits, err := data.subs(fieldDataSplit)
	if err != nil {
		return nil, err
	}
	for _, s := range splits {
		out = append(out, types.Fragment{
			Name: s.str(fieldSplitID) + ".apk",
			URL:  s.str(fieldSplitURL),
			Size: int64(s.uint(fieldSplitSize)),
			Type: types.FragmentSplit,
		})
	}

	extras, err := data.subs(fieldDataAdditionalFile)
	if err != nil {
		return nil, err
	}
	for _, f := range extras {
		out = append(out, types.Fragment{
			Name: additionalFileName(f.uint(fieldAdditionalType), f.uint(fieldAdditionalVC), pkg),
			URL:  f.str(fieldAdditionalURL),
			Size: int64(f.uint(fieldAdditionalSize)),
			Type: types.FragmentOBB,
		})
	}
	return out, nil
}
