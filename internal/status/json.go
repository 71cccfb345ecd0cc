package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/parking-gate/internal/bus"
	"github.com/sweeney/parking-gate/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	InstanceID    string        `json:"instance_id"`
	Ready         bool          `json:"ready"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	Lanes         LanesJSON     `json:"lanes"`
	Occupancy     OccupancyJSON `json:"occupancy"`
	Daily         DailyJSON     `json:"daily"`
	Counters      CountersJSON  `json:"counters"`
	Broker        BrokerStatus  `json:"broker"`
	Network       *NetworkJSON  `json:"network,omitempty"`
	Config        ConfigJSON    `json:"config"`
}

// LanesJSON holds both lanes.
type LanesJSON struct {
	Entry LaneJSON `json:"entry"`
	Exit  LaneJSON `json:"exit"`
}

// LaneJSON is one lane's sensor and gate state. DistanceCm is omitted until
// the first reading arrives.
type LaneJSON struct {
	DistanceCm *int   `json:"distance_cm,omitempty"`
	Proximate  bool   `json:"proximate"`
	Gate       string `json:"gate"`
}

// OccupancyJSON is the ledger view. LastEntryAt is empty until the first entry.
type OccupancyJSON struct {
	Count       int    `json:"count"`
	Capacity    int    `json:"capacity"`
	Available   int    `json:"available"`
	LastEntryAt string `json:"last_entry_at,omitempty"`
}

// DailyJSON holds today's totals.
type DailyJSON struct {
	Date    string `json:"date"`
	Entries int    `json:"entries"`
	Exits   int    `json:"exits"`
}

// CountersJSON is the JSON representation of activity counters.
type CountersJSON struct {
	Admitted        int `json:"admitted"`
	Released        int `json:"released"`
	GuardNoOps      int `json:"guard_no_ops"`
	PersistFailures int `json:"persist_failures"`
	IgnoredDegraded int `json:"ignored_degraded"`
	Malformed       int `json:"malformed"`
	Dropped         int `json:"dropped"`
}

// BrokerStatus reports transport connection state.
type BrokerStatus struct {
	Transport string `json:"transport"`
	Connected bool   `json:"connected"`
	Endpoint  string `json:"endpoint"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	ThresholdCm int    `json:"threshold_cm"`
	Capacity    int    `json:"capacity"`
	Timezone    string `json:"timezone"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	TopicPrefix string `json:"topic_prefix"`
	HTTPAddr    string `json:"http_addr"`
}

func buildLane(ls logic.LaneState) LaneJSON {
	out := LaneJSON{Proximate: ls.Proximate, Gate: bus.GateState(ls.Open)}
	if ls.HasReading {
		d := ls.DistanceCm
		out.DistanceCm = &d
	}
	return out
}

func buildInner(snap Snapshot) StatusInner {
	st := snap.State
	inner := StatusInner{
		InstanceID:    snap.InstanceID,
		Ready:         snap.Ready,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Lanes: LanesJSON{
			Entry: buildLane(st.Entry),
			Exit:  buildLane(st.Exit),
		},
		Occupancy: OccupancyJSON{
			Count:     st.Occupancy.Count,
			Capacity:  st.Occupancy.Capacity,
			Available: st.Occupancy.Available(),
		},
		Daily: DailyJSON{
			Date:    st.Daily.Date,
			Entries: st.Daily.Entries,
			Exits:   st.Daily.Exits,
		},
		Counters: CountersJSON{
			Admitted:        st.Counters.Admitted,
			Released:        st.Counters.Released,
			GuardNoOps:      st.Counters.GuardNoOps,
			PersistFailures: st.Counters.PersistFailures,
			IgnoredDegraded: st.Counters.IgnoredDegraded,
			Malformed:       snap.Malformed,
			Dropped:         snap.Dropped,
		},
		Broker: BrokerStatus{
			Transport: snap.Config.Transport,
			Connected: st.Connected,
			Endpoint:  snap.Config.Broker,
		},
		Config: ConfigJSON{
			ThresholdCm: snap.Config.ThresholdCm,
			Capacity:    snap.Config.Capacity,
			Timezone:    snap.Config.Timezone,
			HeartbeatMs: snap.Config.HeartbeatMs,
			TopicPrefix: snap.Config.TopicPrefix,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}
	if !st.Occupancy.LastEntryAt.IsZero() {
		inner.Occupancy.LastEntryAt = st.Occupancy.LastEntryAt.UTC().Format(time.RFC3339)
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for a system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
