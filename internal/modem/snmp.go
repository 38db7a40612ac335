package modem

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/cablewatch/cablewatch/config"
	"github.com/cablewatch/cablewatch/internal/errors"
	"github.com/cablewatch/cablewatch/internal/logging"
	"github.com/cablewatch/cablewatch/internal/telemetry"
)

var snmpLog = logging.Component("snmp")

// DOCSIS-IF and DOCS-CABLE-DEVICE MIB objects. Channel tables are indexed
// by ifIndex.
const (
	oidSysDescr      = ".1.3.6.1.2.1.1.1.0"
	oidSysUpTime     = ".1.3.6.1.2.1.1.3.0"
	oidSwCurrentVers = ".1.3.6.1.2.1.69.1.3.5.0"
	oidConfigFile    = ".1.3.6.1.2.1.69.1.4.5.0"

	oidDownChannelID    = ".1.3.6.1.2.1.10.127.1.1.1.1.1"
	oidDownFrequency    = ".1.3.6.1.2.1.10.127.1.1.1.1.2"
	oidDownModulation   = ".1.3.6.1.2.1.10.127.1.1.1.1.4"
	oidDownPower        = ".1.3.6.1.2.1.10.127.1.1.1.1.6"
	oidSigQCorrecteds   = ".1.3.6.1.2.1.10.127.1.1.4.1.3"
	oidSigQUncorrect    = ".1.3.6.1.2.1.10.127.1.1.4.1.4"
	oidSigQSignalNoise  = ".1.3.6.1.2.1.10.127.1.1.4.1.5"
	oidUpChannelID      = ".1.3.6.1.2.1.10.127.1.2.1.1.1"
	oidUpFrequency      = ".1.3.6.1.2.1.10.127.1.2.1.1.2"
	oidUpWidth          = ".1.3.6.1.2.1.10.127.1.2.1.1.3"
	oidUpChannelType    = ".1.3.6.1.2.1.10.127.1.2.1.1.15"
	oidCmStatusUsPower  = ".1.3.6.1.4.1.4491.2.1.20.1.2.1.1"
)

// snmpWalkRoots are walked in order on every fetch.
var snmpWalkRoots = []string{
	oidDownChannelID, oidDownFrequency, oidDownModulation, oidDownPower,
	oidSigQCorrecteds, oidSigQUncorrect, oidSigQSignalNoise,
	oidUpChannelID, oidUpFrequency, oidUpWidth, oidUpChannelType,
	oidCmStatusUsPower,
}

// snmpScalars are fetched with a single GET.
var snmpScalars = []string{oidSysDescr, oidSysUpTime, oidSwCurrentVers, oidConfigFile}

// SNMP reads the DOCSIS-IF MIB over SNMPv2c. Fetch renders the walked
// varbinds into "oid value" lines so Parse stays a pure function over
// bytes, same as the other backends.
type SNMP struct {
	name      string
	host      string
	port      uint16
	community string
	timeout   time.Duration
	retries   int
}

// NewSNMP creates an SNMP backend. cfg.URL may be a bare host or a URL
// whose host part is used.
func NewSNMP(cfg Config) *SNMP {
	host := cfg.URL
	if u, err := url.Parse(cfg.URL); err == nil && u.Host != "" {
		host = u.Host
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	port := cfg.SNMPPort
	if port == 0 {
		port = config.DefaultSNMPPort
	}
	timeout := cfg.SNMPTimeout
	if timeout <= 0 {
		timeout = config.DefaultSNMPTimeout
	}
	retries := cfg.SNMPRetries
	if retries <= 0 {
		retries = config.DefaultSNMPRetries
	}

	return &SNMP{
		name:      cfg.Name,
		host:      host,
		port:      port,
		community: cfg.SNMPCommunity,
		timeout:   timeout,
		retries:   retries,
	}
}

// Fetch connects to the agent and collects scalars plus channel tables.
func (c *SNMP) Fetch(ctx context.Context) ([]byte, error) {
	client := &gosnmp.GoSNMP{
		Target:    c.host,
		Port:      c.port,
		Community: c.community,
		Version:   gosnmp.Version2c,
		Timeout:   c.timeout,
		Retries:   c.retries,
		Context:   ctx,
	}

	if err := client.Connect(); err != nil {
		return nil, errors.Fetchf("snmp connect %s: %v", c.host, err)
	}
	defer client.Conn.Close()

	var sb strings.Builder

	pkt, err := client.Get(snmpScalars)
	if err != nil {
		return nil, errors.Fetchf("snmp get: %v", err)
	}
	for _, v := range pkt.Variables {
		writeVarbind(&sb, v)
	}

	for _, root := range snmpWalkRoots {
		// Vendor MIB subtrees may be absent; a failed walk of one root
		// is a fetch error since the channel tables are mandatory in
		// DOCSIS devices and partial data would skew the reading.
		if err := client.BulkWalk(root, func(v gosnmp.SnmpPDU) error {
			writeVarbind(&sb, v)
			return nil
		}); err != nil {
			return nil, errors.Fetchf("snmp walk %s: %v", root, err)
		}
	}

	raw := []byte(sb.String())
	snmpLog.Debug("snmp fetch complete", "bytes", len(raw))
	return raw, nil
}

// writeVarbind renders one varbind as an "oid value" line.
func writeVarbind(sb *strings.Builder, v gosnmp.SnmpPDU) {
	switch v.Type {
	case gosnmp.OctetString:
		sb.WriteString(fmt.Sprintf("%s %s\n", v.Name, string(v.Value.([]byte))))
	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView:
		// Skip holes; Parse treats missing columns as zero.
	default:
		sb.WriteString(fmt.Sprintf("%s %d\n", v.Name, gosnmp.ToBigInt(v.Value)))
	}
}

// Parse converts the collected varbind lines into a Reading.
func (c *SNMP) Parse(raw []byte) (*telemetry.Reading, error) {
	vars := map[string]string{}
	for _, line := range strings.Split(string(raw), "\n") {
		if line == "" {
			continue
		}
		oid, value, ok := strings.Cut(line, " ")
		if !ok {
			return nil, errors.Parsef("malformed varbind line %q", line)
		}
		vars[oid] = value
	}

	reading := &telemetry.Reading{
		ModemName:       c.name,
		UptimeSeconds:   snmpUint(vars, oidSysUpTime) / 100, // TimeTicks are centiseconds
		FirmwareVersion: vars[oidSwCurrentVers],
		Model:           sysDescrModel(vars[oidSysDescr]),
		Downstream:      parseSNMPDownstream(vars),
		Upstream:        parseSNMPUpstream(vars),
		Timestamp:       time.Now().UTC(),
	}
	if file := vars[oidConfigFile]; file != "" {
		reading.ConfigFilename = &file
	}
	reading.Normalize()

	return reading, nil
}

// parseSNMPDownstream assembles downstream channels from the walked
// columns, joined on ifIndex.
func parseSNMPDownstream(vars map[string]string) []telemetry.DownstreamChannel {
	channels := []telemetry.DownstreamChannel{}
	for _, idx := range tableIndexes(vars, oidDownChannelID) {
		channels = append(channels, telemetry.DownstreamChannel{
			ChannelID:         uint8(snmpUint(vars, oidDownChannelID+"."+idx)),
			FrequencyHz:       float64(snmpUint(vars, oidDownFrequency+"."+idx)),
			Modulation:        downModulationName(snmpUint(vars, oidDownModulation+"."+idx)),
			PowerDBmV:         float64(snmpInt(vars, oidDownPower+"."+idx)) / 10, // TenthdBmV
			SNRdB:             float64(snmpInt(vars, oidSigQSignalNoise+"."+idx)) / 10,
			CorrectedErrors:   snmpInt(vars, oidSigQCorrecteds+"."+idx),
			UncorrectedErrors: snmpInt(vars, oidSigQUncorrect+"."+idx),
		})
	}
	return channels
}

// parseSNMPUpstream assembles upstream channels from the walked columns.
func parseSNMPUpstream(vars map[string]string) []telemetry.UpstreamChannel {
	channels := []telemetry.UpstreamChannel{}
	for _, idx := range tableIndexes(vars, oidUpChannelID) {
		channels = append(channels, telemetry.UpstreamChannel{
			ChannelID:   uint8(snmpUint(vars, oidUpChannelID+"."+idx)),
			FrequencyHz: float64(snmpUint(vars, oidUpFrequency+"."+idx)),
			Modulation:  upChannelTypeName(snmpUint(vars, oidUpChannelType+"."+idx)),
			PowerDBmV:   float64(snmpInt(vars, oidCmStatusUsPower+"."+idx)) / 10,
			WidthHz:     float64(snmpUint(vars, oidUpWidth+"."+idx)),
		})
	}
	return channels
}

// tableIndexes returns the ifIndex suffixes present under a column OID,
// in ascending numeric order so channel ordering is stable across scrapes.
func tableIndexes(vars map[string]string, column string) []string {
	prefix := column + "."
	var idx []int
	for oid := range vars {
		if suffix, ok := strings.CutPrefix(oid, prefix); ok {
			if n, err := strconv.Atoi(suffix); err == nil {
				idx = append(idx, n)
			}
		}
	}
	sort.Ints(idx)

	out := make([]string, len(idx))
	for i, n := range idx {
		out[i] = strconv.Itoa(n)
	}
	return out
}

func snmpUint(vars map[string]string, oid string) uint64 {
	v, err := strconv.ParseUint(vars[oid], 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func snmpInt(vars map[string]string, oid string) int64 {
	v, err := strconv.ParseInt(vars[oid], 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// downModulationName maps docsIfDownChannelModulation enum values.
func downModulationName(v uint64) string {
	switch v {
	case 3:
		return "QAM64"
	case 4:
		return "QAM256"
	case 2:
		return "other"
	default:
		return "unknown"
	}
}

// upChannelTypeName maps docsIfUpChannelType enum values.
func upChannelTypeName(v uint64) string {
	switch v {
	case 2:
		return "TDMA"
	case 3:
		return "ATDMA"
	case 4:
		return "SCDMA"
	case 5:
		return "TDMA/ATDMA"
	default:
		return "unknown"
	}
}

// sysDescrModel extracts the MODEL field from a DOCSIS sysDescr string,
// e.g. "<<HW_REV: 1.0; VENDOR: Motorola; ...; MODEL: MB8600>>".
func sysDescrModel(descr string) string {
	for _, part := range strings.Split(strings.Trim(descr, "<>"), ";") {
		key, value, ok := strings.Cut(part, ":")
		if ok && strings.TrimSpace(key) == "MODEL" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
