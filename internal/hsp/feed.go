package hsp

import (
	"encoding/json"
	"strings"
)

type serviceMetricsRequest struct {
	FromLoc   string   `json:"from_loc"`
	ToLoc     string   `json:"to_loc"`
	Days      string   `json:"days"`
	FromDate  string   `json:"from_date"`
	ToDate    string   `json:"to_date"`
	FromTime  string   `json:"from_time"`
	ToTime    string   `json:"to_time"`
	TocFilter []string `json:"toc_filter,omitempty"`
}

type serviceMetricsResponse struct {
	Services []ServiceMetricsEntry `json:"Services"`
}

// ServiceMetricsEntry is one Services element from /serviceMetrics.
type ServiceMetricsEntry struct {
	Attributes ServiceAttributesMetrics `json:"serviceAttributesMetrics"`
}

type ServiceAttributesMetrics struct {
	RIDs    stringList `json:"rids"`
	GbttPtd string     `json:"gbtt_ptd"`
	GbttPta string     `json:"gbtt_pta"`
	TocCode string     `json:"toc_code"`
}

// stringList tolerates the feed returning either a scalar or a list of RIDs.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		var v []string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*l = v
		return nil
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*l = []string{v}
	return nil
}

type serviceDetailsRequest struct {
	RID string `json:"rid"`
}

// ServiceDetails is the /serviceDetails response for one RID.
type ServiceDetails struct {
	Attributes ServiceAttributesDetails `json:"serviceAttributesDetails"`
}

type ServiceAttributesDetails struct {
	DateOfService string           `json:"date_of_service"`
	TocCode       string           `json:"toc_code"`
	Locations     []DetailLocation `json:"locations"`
}

// DetailLocation is one calling point: planned departure/arrival and the
// actual arrival, all as HHMM text.
type DetailLocation struct {
	Location string `json:"location"`
	GbttPtd  string `json:"gbtt_ptd"`
	GbttPta  string `json:"gbtt_pta"`
	ActualTa string `json:"actual_ta"`
}

// Template carries per-RID schedule fields from the metrics response, used as
// fallback when the detail record omits them.
type Template struct {
	GbttPtd string
	GbttPta string
	Toc     string
}

// FetchServiceMetrics posts one chunk request and returns its Services list.
func (c *Client) FetchServiceMetrics(fromLoc, toLoc, days string, chunk Chunk, tocFilter []string) ([]ServiceMetricsEntry, error) {
	payload := serviceMetricsRequest{
		FromLoc:   fromLoc,
		ToLoc:     toLoc,
		Days:      days,
		FromDate:  chunk.Date,
		ToDate:    chunk.Date,
		FromTime:  chunk.FromTime,
		ToTime:    chunk.ToTime,
		TocFilter: tocFilter,
	}

	body, err := c.post(c.metrics, "/serviceMetrics", payload)
	if err != nil {
		return nil, err
	}

	var resp serviceMetricsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	return resp.Services, nil
}

// FetchServiceDetails posts one per-RID details request.
func (c *Client) FetchServiceDetails(rid string) (*ServiceDetails, error) {
	body, err := c.post(c.details, "/serviceDetails", serviceDetailsRequest{RID: rid})
	if err != nil {
		return nil, err
	}

	var resp ServiceDetails
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ExtractRIDsAndTemplates collects unique RIDs in response order along with
// their schedule templates. Duplicate RIDs across chunk boundaries keep the
// first template seen.
func ExtractRIDsAndTemplates(services []ServiceMetricsEntry) ([]string, map[string]Template) {
	var rids []string
	templates := make(map[string]Template)

	for _, s := range services {
		attrs := s.Attributes
		tmpl := Template{
			GbttPtd: strings.TrimSpace(attrs.GbttPtd),
			GbttPta: strings.TrimSpace(attrs.GbttPta),
			Toc:     strings.TrimSpace(attrs.TocCode),
		}
		for _, rid := range attrs.RIDs {
			if rid == "" {
				continue
			}
			if _, seen := templates[rid]; seen {
				continue
			}
			rids = append(rids, rid)
			templates[rid] = tmpl
		}
	}
	return rids, templates
}
