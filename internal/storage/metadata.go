package storage

import "fmt"

// lightFields are kept with each vector for filtering and ranking.
var lightFields = map[string]bool{
	"document_id":       true,
	"source_type":       true,
	"date":              true,
	"date_end":          true,
	"sender":            true,
	"document_category": true,
	"contact_name":      true,
	"normalized_name":   true,
	"is_group_chat":     true,
	"thread_type":       true,
	"message_count":     true,
	"participant_count": true,
}

// heavyFields are kept in chunk_details and only loaded for display.
var heavyFields = map[string]bool{
	"file_path":           true,
	"filename":            true,
	"indexed_at":          true,
	"is_pinned":           true,
	"is_approved":         true,
	"family_members":      true,
	"work_history":        true,
	"education":           true,
	"shared_links":        true,
	"media_types":         true,
	"has_media":           true,
	"reaction_count":      true,
	"chat_name":           true,
	"participants":        true,
	"search_query":        true,
	"full_name":           true,
	"first_name":          true,
	"last_name":           true,
	"email":               true,
	"phone":               true,
	"birthday":            true,
	"gender":              true,
	"city":                true,
	"hometown":            true,
	"relationship_status": true,
	"partner":             true,
	"username":            true,
	"registration_date":   true,
	"latitude":            true,
	"longitude":           true,
	"cities":              true,
	"regions":             true,
	"location_type":       true,
	"record_count":        true,
	"contact_type":        true,
	"friendship_date":     true,
}

// maxLightValueLen is the longest rendered value an unknown field may have
// and still travel with the vector.
const maxLightValueLen = 100

// IsLightField reports whether key is always stored with the vector.
func IsLightField(key string) bool {
	return lightFields[key]
}

// SplitMetadata partitions loader metadata into the light part stored with
// each vector and the heavy part stored in chunk_details. Unknown fields go
// light when their rendered value is at most 100 characters. document_id is
// copied into both halves so they can be joined again.
func SplitMetadata(md map[string]interface{}) (light, heavy map[string]interface{}) {
	light = make(map[string]interface{})
	heavy = make(map[string]interface{})
	for k, v := range md {
		switch {
		case lightFields[k]:
			light[k] = v
		case heavyFields[k]:
			heavy[k] = v
		case len(fmt.Sprint(v)) > maxLightValueLen:
			heavy[k] = v
		default:
			light[k] = v
		}
	}
	if id, ok := md["document_id"]; ok {
		light["document_id"] = id
		heavy["document_id"] = id
	}
	return light, heavy
}

// MergeMetadata rebuilds full metadata from its halves. Heavy values win on
// key collisions. A nil heavy half returns a copy of light.
func MergeMetadata(light, heavy map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(light)+len(heavy))
	for k, v := range light {
		out[k] = v
	}
	for k, v := range heavy {
		out[k] = v
	}
	return out
}
