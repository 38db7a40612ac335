package modem

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cablewatch/cablewatch/internal/errors"
	"github.com/cablewatch/cablewatch/internal/telemetry"
)

// The status payload packs channel tables into single strings: records are
// separated by "|+|" and fields within a record by "^".
const (
	hnapRecordSep = "|+|"
	hnapFieldSep  = "^"

	hnapDownstreamFields = 10
	hnapUpstreamFields   = 8

	hnapModel = "MB8600"
)

// uptimeRegexp matches the firmware's uptime rendering, e.g.
// "7 days 03h:42m:18s". Any component may be absent.
var uptimeRegexp = regexp.MustCompile(`(?:(\d+)\s*days\s*)?(?:(\d{2})h:)?(?:(\d{2})m:)?(?:(\d{2})s)?`)

type hnapStatus struct {
	GetMultipleHNAPsResponse struct {
		GetMultipleHNAPsResult               string
		GetMotoStatusStartupSequenceResponse struct {
			MotoConnConfigurationFileComment string
		}
		GetMotoStatusConnectionInfoResponse struct {
			MotoConnSystemUpTime string
		}
		GetMotoStatusDownstreamChannelInfoResponse struct {
			MotoConnDownstreamChannel string
		}
		GetMotoStatusUpstreamChannelInfoResponse struct {
			MotoConnUpstreamChannel string
		}
		GetMotoStatusSoftwareResponse struct {
			StatusSoftwareSfVer string
		}
	}
}

// parseHNAPStatus converts a GetMultipleHNAPs response body into a Reading.
func parseHNAPStatus(modemName string, raw []byte) (*telemetry.Reading, error) {
	var status hnapStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, errors.Parsef("decode status: %v", err)
	}

	resp := &status.GetMultipleHNAPsResponse

	down, err := parseHNAPDownstream(resp.GetMotoStatusDownstreamChannelInfoResponse.MotoConnDownstreamChannel)
	if err != nil {
		return nil, err
	}

	up, err := parseHNAPUpstream(resp.GetMotoStatusUpstreamChannelInfoResponse.MotoConnUpstreamChannel)
	if err != nil {
		return nil, err
	}

	uptime := parseHNAPUptime(resp.GetMotoStatusConnectionInfoResponse.MotoConnSystemUpTime)

	reading := &telemetry.Reading{
		ModemName:       modemName,
		UptimeSeconds:   uptime,
		FirmwareVersion: resp.GetMotoStatusSoftwareResponse.StatusSoftwareSfVer,
		Model:           hnapModel,
		Downstream:      down,
		Upstream:        up,
		Timestamp:       time.Now().UTC(),
	}
	if comment := resp.GetMotoStatusStartupSequenceResponse.MotoConnConfigurationFileComment; comment != "" {
		reading.ConfigFilename = &comment
	}
	reading.Normalize()

	return reading, nil
}

// parseHNAPDownstream parses the packed downstream channel table. Fields
// per record: lock status, index, modulation, channel id, frequency (MHz),
// power (dBmV), SNR (dB), corrected errors, uncorrected errors, trailer.
func parseHNAPDownstream(packed string) ([]telemetry.DownstreamChannel, error) {
	channels := []telemetry.DownstreamChannel{}
	if strings.TrimSpace(packed) == "" {
		return channels, nil
	}

	for _, record := range strings.Split(packed, hnapRecordSep) {
		fields := strings.Split(record, hnapFieldSep)
		if len(fields) != hnapDownstreamFields {
			return nil, errors.Parsef("downstream record has %d fields, want %d: %q",
				len(fields), hnapDownstreamFields, record)
		}

		modulation := strings.TrimSpace(fields[2])

		channelID, err := parseChannelID(fields[3])
		if err != nil {
			return nil, errors.Parsef("downstream channel id: %v", err)
		}
		frequencyMHz, err := parseFloatField("downstream frequency", fields[4])
		if err != nil {
			return nil, err
		}
		power, err := parseFloatField("downstream power", fields[5])
		if err != nil {
			return nil, err
		}
		snr, err := parseFloatField("downstream snr", fields[6])
		if err != nil {
			return nil, err
		}
		correcteds, err := parseIntField("downstream correcteds", fields[7])
		if err != nil {
			return nil, err
		}
		uncorrecteds, err := parseIntField("downstream uncorrecteds", fields[8])
		if err != nil {
			return nil, err
		}

		// Firmware bug: the OFDM PLC channel reports SNR at roughly 2.5x
		// below its true value.
		if modulation == "OFDM PLC" && snr < 20.0 {
			snr *= 2.5
		}

		channels = append(channels, telemetry.DownstreamChannel{
			ChannelID:         channelID,
			FrequencyHz:       frequencyMHz * 1e6,
			Modulation:        modulation,
			PowerDBmV:         power,
			SNRdB:             snr,
			CorrectedErrors:   correcteds,
			UncorrectedErrors: uncorrecteds,
		})
	}

	return channels, nil
}

// parseHNAPUpstream parses the packed upstream channel table. Fields per
// record: lock status, index, modulation, channel id, width (kHz),
// frequency (MHz), power (dBmV), trailer.
func parseHNAPUpstream(packed string) ([]telemetry.UpstreamChannel, error) {
	channels := []telemetry.UpstreamChannel{}
	if strings.TrimSpace(packed) == "" {
		return channels, nil
	}

	for _, record := range strings.Split(packed, hnapRecordSep) {
		fields := strings.Split(record, hnapFieldSep)
		if len(fields) != hnapUpstreamFields {
			return nil, errors.Parsef("upstream record has %d fields, want %d: %q",
				len(fields), hnapUpstreamFields, record)
		}

		channelID, err := parseChannelID(fields[3])
		if err != nil {
			return nil, errors.Parsef("upstream channel id: %v", err)
		}
		widthKHz, err := parseFloatField("upstream width", fields[4])
		if err != nil {
			return nil, err
		}
		frequencyMHz, err := parseFloatField("upstream frequency", fields[5])
		if err != nil {
			return nil, err
		}
		power, err := parseFloatField("upstream power", fields[6])
		if err != nil {
			return nil, err
		}

		channels = append(channels, telemetry.UpstreamChannel{
			ChannelID:   channelID,
			FrequencyHz: frequencyMHz * 1e6,
			Modulation:  strings.TrimSpace(fields[2]),
			PowerDBmV:   power,
			WidthHz:     widthKHz * 1e3,
		})
	}

	return channels, nil
}

// parseHNAPUptime converts the firmware's uptime string to seconds.
// Unrecognized strings parse to zero rather than failing the reading.
func parseHNAPUptime(s string) uint64 {
	m := uptimeRegexp.FindStringSubmatch(s)
	if m == nil {
		return 0
	}

	var total uint64
	multipliers := []uint64{86400, 3600, 60, 1}
	for i, mult := range multipliers {
		group := m[i+1]
		if group == "" {
			continue
		}
		v, err := strconv.ParseUint(group, 10, 64)
		if err != nil {
			continue
		}
		total += v * mult
	}
	return total
}

func parseChannelID(s string) (uint8, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 8)
	if err != nil {
		return 0, err
	}
	return uint8(v), nil
}

func parseFloatField(name, s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, errors.Parsef("%s: %v", name, err)
	}
	return v, nil
}

func parseIntField(name, s string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, errors.Parsef("%s: %v", name, err)
	}
	return v, nil
}
