package automation

// Per-kind parameter structs decoded loosely from the open parameter map.
// Unknown keys are ignored, missing keys fall back to the defaults below.

type BandwidthParams struct {
	Bandwidth float64
}

type ReroutingParams struct {
	SourceRoute string
	TargetRoute string
}

type QoSParams struct {
	Policy        string
	PriorityFlows []string
}

type MitigationParams struct {
	Type     string
	Severity string
}

type AlertParams struct {
	Recipients []string
	AlertType  string
	Message    string
}

type RestartParams struct {
	Type string
}

type ConfigUpdateParams struct {
	Section string
	Config  map[string]any
}

type MonitoringParams struct {
	Type     string
	Interval int
}

func decodeBandwidthParams(m map[string]any) BandwidthParams {
	return BandwidthParams{Bandwidth: paramFloat(m, "bandwidth", 100)}
}

func decodeReroutingParams(m map[string]any) ReroutingParams {
	return ReroutingParams{
		SourceRoute: paramString(m, "source_route", ""),
		TargetRoute: paramString(m, "target_route", ""),
	}
}

func decodeQoSParams(m map[string]any) QoSParams {
	return QoSParams{
		Policy:        paramString(m, "policy", "medium"),
		PriorityFlows: paramStrings(m, "priority_flows"),
	}
}

func decodeMitigationParams(m map[string]any) MitigationParams {
	return MitigationParams{
		Type:     paramString(m, "type", "bandwidth_limit"),
		Severity: paramString(m, "severity", "medium"),
	}
}

func decodeAlertParams(m map[string]any) AlertParams {
	p := AlertParams{
		Recipients: paramStrings(m, "recipients"),
		AlertType:  paramString(m, "alert_type", "info"),
		Message:    paramString(m, "message", "Network alert"),
	}
	if len(p.Recipients) == 0 {
		p.Recipients = []string{"admin@company.com"}
	}
	return p
}

func decodeRestartParams(m map[string]any) RestartParams {
	return RestartParams{Type: paramString(m, "type", "soft")}
}

func decodeConfigUpdateParams(m map[string]any) ConfigUpdateParams {
	p := ConfigUpdateParams{Section: paramString(m, "section", "general")}
	if raw, ok := m["config"].(map[string]any); ok {
		p.Config = raw
	} else {
		p.Config = map[string]any{}
	}
	return p
}

func decodeMonitoringParams(m map[string]any) MonitoringParams {
	return MonitoringParams{
		Type:     paramString(m, "type", "enhanced"),
		Interval: int(paramFloat(m, "interval", 60)),
	}
}

func paramString(m map[string]any, key, def string) string {
	if m == nil {
		return def
	}
	if s, ok := m[key].(string); ok && s != "" {
		return s
	}
	return def
}

// paramFloat accepts float64 and int values; JSON decoding produces float64,
// direct submissions may pass int.
func paramFloat(m map[string]any, key string, def float64) float64 {
	if m == nil {
		return def
	}
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

func paramStrings(m map[string]any, key string) []string {
	if m == nil {
		return nil
	}
	switch v := m[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
