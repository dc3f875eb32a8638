package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/flatplanetpl/poc-digital-twin/internal/models"
)

// Document categories set by the Facebook export parsers. Ranking reads them
// before source_type.
const (
	CategoryProfile       = "profile"
	CategoryContact       = "contact"
	CategoryLocation      = "location"
	CategorySearchHistory = "search_history"
	CategoryInterests     = "interests"
)

const (
	maxActivityItems   = 20
	maxInterestsPerCat = 15
)

// facebookExport parses one known file of a Facebook data export.
type facebookExport struct {
	source string
	parse  func(content []byte, now time.Time) ([]models.Record, error)
}

// facebookExports maps export file names to their parsers. Any other JSON
// file is read as a Messenger thread.
var facebookExports = map[string]facebookExport{
	"profile_information.json":               {SourceProfile, parseProfile},
	"your_friends.json":                      {SourceContacts, parseFriends},
	"contacts_uploaded_from_your_phone.json": {SourceContacts, parsePhoneContacts},
	"device_location.json":                   {SourceLocation, parseDeviceLocations},
	"primary_location.json":                  {SourceLocation, parsePrimaryLocation},
	"primary_public_location.json":           {SourceLocation, parsePrimaryLocation},
	"locations_of_interest.json":             {SourceLocation, parseLocationsOfInterest},
	"your_search_history.json":               {SourceSearchHistory, parseSearchHistory},
	"ads_interests.json":                     {SourceInterests, parseAdsInterests},
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

func (f flexString) String() string { return fixMojibake(strings.TrimSpace(string(f))) }

func unixLocal(ts int64) time.Time { return time.Unix(ts, 0).Local() }

// compactJSON marshals v without HTML escaping for metadata values.
func compactJSON(v interface{}) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return ""
	}
	return strings.TrimRight(buf.String(), "\n")
}

func decodeExport(content []byte, v interface{}, what string) error {
	if err := json.Unmarshal(content, v); err != nil {
		return fmt.Errorf("failed to parse %s export: %w", what, err)
	}
	return nil
}

type profileExport struct {
	Profile *struct {
		Name struct {
			FullName  flexString `json:"full_name"`
			FirstName flexString `json:"first_name"`
			LastName  flexString `json:"last_name"`
		} `json:"name"`
		Emails struct {
			Emails []json.RawMessage `json:"emails"`
		} `json:"emails"`
		PhoneNumbers []struct {
			PhoneNumber flexString `json:"phone_number"`
		} `json:"phone_numbers"`
		Birthday struct {
			Year  int `json:"year"`
			Month int `json:"month"`
			Day   int `json:"day"`
		} `json:"birthday"`
		Gender struct {
			GenderOption flexString `json:"gender_option"`
		} `json:"gender"`
		CurrentCity struct {
			Name flexString `json:"name"`
		} `json:"current_city"`
		Hometown struct {
			Name flexString `json:"name"`
		} `json:"hometown"`
		Relationship struct {
			Status  flexString `json:"status"`
			Partner flexString `json:"partner"`
		} `json:"relationship"`
		FamilyMembers []struct {
			Name     flexString `json:"name"`
			Relation flexString `json:"relation"`
		} `json:"family_members"`
		WorkExperiences []struct {
			Employer       flexString `json:"employer"`
			StartTimestamp int64      `json:"start_timestamp"`
			EndTimestamp   int64      `json:"end_timestamp"`
		} `json:"work_experiences"`
		EducationExperiences []struct {
			Name flexString `json:"name"`
		} `json:"education_experiences"`
		Username              flexString `json:"username"`
		FavoriteQuotes        flexString `json:"favorite_quotes"`
		RegistrationTimestamp int64      `json:"registration_timestamp"`
	} `json:"profile_v2"`
}

type familyMember struct {
	Name     string `json:"name"`
	Relation string `json:"relation"`
}

type workEntry struct {
	Employer string `json:"employer"`
	Start    *int64 `json:"start"`
	End      *int64 `json:"end"`
}

func optionalTimestamp(ts int64) *int64 {
	if ts == 0 {
		return nil
	}
	return &ts
}

// parseProfile turns profile_information.json into one self-profile record.
func parseProfile(content []byte, now time.Time) ([]models.Record, error) {
	var export profileExport
	if err := decodeExport(content, &export, "profile"); err != nil {
		return nil, err
	}
	p := export.Profile
	if p == nil {
		return nil, nil
	}

	var parts []string
	md := map[string]interface{}{
		"document_category": CategoryProfile,
		"profile_type":      "self",
	}
	line := func(label, value string) {
		parts = append(parts, label+": "+value)
	}

	if name := p.Name.FullName.String(); name != "" {
		line("Name", name)
		md["full_name"] = name
		md["first_name"] = p.Name.FirstName.String()
		md["last_name"] = p.Name.LastName.String()
	}

	var emails []string
	for _, raw := range p.Emails.Emails {
		var s flexString
		if err := json.Unmarshal(raw, &s); err == nil && s.String() != "" {
			emails = append(emails, s.String())
			continue
		}
		var obj struct {
			Email flexString `json:"email"`
		}
		if err := json.Unmarshal(raw, &obj); err == nil && obj.Email.String() != "" {
			emails = append(emails, obj.Email.String())
		}
	}
	if len(emails) > 0 {
		line("Email", emails[0])
		md["email"] = emails[0]
	}

	var phones []string
	for _, ph := range p.PhoneNumbers {
		if n := ph.PhoneNumber.String(); n != "" {
			phones = append(phones, n)
		}
	}
	if len(phones) > 0 {
		line("Phone", phones[0])
		md["phone"] = phones[0]
	}

	if b := p.Birthday; b.Year > 0 {
		month, day := b.Month, b.Day
		if month == 0 {
			month = 1
		}
		if day == 0 {
			day = 1
		}
		birthday := fmt.Sprintf("%04d-%02d-%02d", b.Year, month, day)
		line("Birthday", birthday)
		md["birthday"] = birthday
	}
	if g := p.Gender.GenderOption.String(); g != "" {
		line("Gender", g)
		md["gender"] = g
	}
	if c := p.CurrentCity.Name.String(); c != "" {
		line("Current city", c)
		md["city"] = c
	}
	if h := p.Hometown.Name.String(); h != "" {
		line("Hometown", h)
		md["hometown"] = h
	}
	if s := p.Relationship.Status.String(); s != "" {
		rel := s
		if partner := p.Relationship.Partner.String(); partner != "" {
			rel += " with " + partner
			md["partner"] = partner
		}
		line("Relationship", rel)
		md["relationship_status"] = s
	}

	if len(p.FamilyMembers) > 0 {
		family := make([]familyMember, 0, len(p.FamilyMembers))
		var labels []string
		for _, f := range p.FamilyMembers {
			m := familyMember{Name: f.Name.String(), Relation: f.Relation.String()}
			family = append(family, m)
			if m.Name != "" && m.Relation != "" {
				labels = append(labels, m.Name+" ("+m.Relation+")")
			}
		}
		if len(labels) > 0 {
			line("Family", strings.Join(labels, ", "))
			md["family_members"] = compactJSON(family)
		}
	}

	var work []workEntry
	var jobs []string
	for _, w := range p.WorkExperiences {
		employer := w.Employer.String()
		if employer == "" {
			continue
		}
		work = append(work, workEntry{
			Employer: employer,
			Start:    optionalTimestamp(w.StartTimestamp),
			End:      optionalTimestamp(w.EndTimestamp),
		})
		job := employer
		if w.StartTimestamp > 0 {
			end := "present"
			if w.EndTimestamp > 0 {
				end = strconv.Itoa(unixLocal(w.EndTimestamp).Year())
			}
			job += fmt.Sprintf(" (%d-%s)", unixLocal(w.StartTimestamp).Year(), end)
		}
		jobs = append(jobs, job)
	}
	if len(jobs) > 0 {
		line("Work", strings.Join(jobs, ", "))
		md["work_history"] = compactJSON(work)
	}

	var schools []string
	for _, e := range p.EducationExperiences {
		if n := e.Name.String(); n != "" {
			schools = append(schools, n)
		}
	}
	if len(schools) > 0 {
		line("Education", strings.Join(schools, ", "))
		md["education"] = compactJSON(schools)
	}

	if u := p.Username.String(); u != "" {
		line("Username", u)
		md["username"] = u
	}
	if q := p.FavoriteQuotes.String(); q != "" {
		line("Favorite quotes", q)
	}
	if len(parts) == 0 {
		return nil, nil
	}

	date := now
	if p.RegistrationTimestamp > 0 {
		date = unixLocal(p.RegistrationTimestamp)
		md["registration_date"] = date.Format(dateLayout)
	}
	md["date"] = date.Format(dateLayout)
	return []models.Record{{
		Content:  "My Profile Information:\n" + strings.Join(parts, "\n"),
		Metadata: md,
	}}, nil
}

// parseFriends yields one contact record per Facebook friend.
func parseFriends(content []byte, now time.Time) ([]models.Record, error) {
	var export struct {
		Friends []struct {
			Name      flexString `json:"name"`
			Timestamp int64      `json:"timestamp"`
		} `json:"friends_v2"`
	}
	if err := decodeExport(content, &export, "friends"); err != nil {
		return nil, err
	}
	var records []models.Record
	for _, f := range export.Friends {
		name := f.Name.String()
		if name == "" {
			continue
		}
		text := "Facebook friend: " + name
		md := contactMetadata(name, "friend")
		date := now
		if f.Timestamp > 0 {
			date = unixLocal(f.Timestamp)
			text += " (friends since " + date.Format("2006-01-02") + ")"
			md["friendship_date"] = date.Format(dateLayout)
		}
		md["date"] = date.Format(dateLayout)
		records = append(records, models.Record{Content: text, Metadata: md})
	}
	return records, nil
}

func contactMetadata(name, kind string) map[string]interface{} {
	return map[string]interface{}{
		"contact_name":      name,
		"normalized_name":   strings.ToLower(strings.TrimSpace(name)),
		"contact_type":      kind,
		"document_category": CategoryContact,
	}
}

type phoneContact struct {
	LabelValues []struct {
		Label          flexString `json:"label"`
		Value          flexString `json:"value"`
		TimestampValue int64      `json:"timestamp_value"`
	} `json:"label_values"`
}

// parsePhoneContacts reads contacts synced from the phone. The file is either
// a bare list or an object holding contacts_v2 or contacts; labels appear in
// English or Polish.
func parsePhoneContacts(content []byte, now time.Time) ([]models.Record, error) {
	var contacts []phoneContact
	if bytes.HasPrefix(bytes.TrimSpace(content), []byte("[")) {
		if err := decodeExport(content, &contacts, "phone contacts"); err != nil {
			return nil, err
		}
	} else {
		var export struct {
			V2     []phoneContact `json:"contacts_v2"`
			Legacy []phoneContact `json:"contacts"`
		}
		if err := decodeExport(content, &export, "phone contacts"); err != nil {
			return nil, err
		}
		contacts = export.V2
		if len(contacts) == 0 {
			contacts = export.Legacy
		}
	}

	var records []models.Record
	for _, c := range contacts {
		var name, firstName, phone, email string
		var created int64
		for _, lv := range c.LabelValues {
			label := lv.Label.String()
			value := lv.Value.String()
			switch {
			case label == "Nazwa" || label == "Name":
				name = value
			case label == "Imię" || label == "First name":
				firstName = value
			case strings.Contains(strings.ToLower(label), "phone"):
				phone = value
			case strings.Contains(strings.ToLower(label), "email"):
				email = value
			case label == "Czas utworzenia" || label == "Creation time":
				created = lv.TimestampValue
			}
		}
		if name == "" {
			name = firstName
		}
		if name == "" {
			continue
		}

		parts := []string{"Phone contact: " + name}
		md := contactMetadata(name, "phone_contact")
		if phone != "" {
			parts = append(parts, "Phone: "+phone)
			md["phone"] = phone
		}
		if email != "" {
			parts = append(parts, "Email: "+email)
			md["email"] = email
		}
		date := now
		if created > 0 {
			date = unixLocal(created)
		}
		md["date"] = date.Format(dateLayout)
		records = append(records, models.Record{Content: strings.Join(parts, ", "), Metadata: md})
	}
	return records, nil
}

type deviceLocation struct {
	Timestamp  int64 `json:"timestamp"`
	Coordinate struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"coordinate"`
	City    flexString `json:"city"`
	Region  flexString `json:"region"`
	Country flexString `json:"country"`
}

// firstUnique appends s to list when it is new and non-empty.
func firstUnique(list []string, s string) []string {
	if s == "" || contains(list, s) {
		return list
	}
	return append(list, s)
}

func firstN(list []string, n int) []string {
	if len(list) > n {
		return list[:n]
	}
	return list
}

// parseDeviceLocations groups device location history into one record per
// local day, in the order days first appear.
func parseDeviceLocations(content []byte, now time.Time) ([]models.Record, error) {
	var export struct {
		V2     []deviceLocation `json:"location_history_v2"`
		Legacy []deviceLocation `json:"location_history"`
	}
	if err := decodeExport(content, &export, "device location"); err != nil {
		return nil, err
	}
	history := export.V2
	if len(history) == 0 {
		history = export.Legacy
	}

	var days []string
	byDay := map[string][]deviceLocation{}
	for _, loc := range history {
		if loc.Timestamp <= 0 {
			continue
		}
		day := unixLocal(loc.Timestamp).Format("2006-01-02")
		if _, ok := byDay[day]; !ok {
			days = append(days, day)
		}
		byDay[day] = append(byDay[day], loc)
	}

	records := make([]models.Record, 0, len(days))
	for _, day := range days {
		locs := byDay[day]
		var cities, regions []string
		for _, loc := range locs {
			cities = firstUnique(cities, loc.City.String())
			regions = firstUnique(regions, loc.Region.String())
		}
		parts := []string{"Location history for " + day + ":"}
		if len(cities) > 0 {
			parts = append(parts, "Cities visited: "+strings.Join(cities, ", "))
		}
		if len(regions) > 0 {
			parts = append(parts, "Regions: "+strings.Join(regions, ", "))
		}
		parts = append(parts, fmt.Sprintf("Number of location records: %d", len(locs)))

		md := map[string]interface{}{
			"date":              day + "T00:00:00",
			"location_type":     "device_history",
			"document_category": CategoryLocation,
			"record_count":      len(locs),
			"cities":            strings.Join(firstN(cities, 5), ", "),
			"regions":           strings.Join(firstN(regions, 3), ", "),
		}
		if c := locs[0].Coordinate; c.Latitude != 0 && c.Longitude != 0 {
			md["latitude"] = c.Latitude
			md["longitude"] = c.Longitude
		}
		records = append(records, models.Record{Content: strings.Join(parts, "\n"), Metadata: md})
	}
	return records, nil
}

type placeInfo struct {
	City    flexString `json:"city"`
	Region  flexString `json:"region"`
	Country flexString `json:"country"`
	Zipcode flexString `json:"zipcode"`
}

// parsePrimaryLocation reads primary_location.json or
// primary_public_location.json into a single record.
func parsePrimaryLocation(content []byte, now time.Time) ([]models.Record, error) {
	var export struct {
		V2     *placeInfo `json:"primary_location_v2"`
		Legacy *placeInfo `json:"primary_location"`
		Public *placeInfo `json:"primary_public_location_v2"`
	}
	if err := decodeExport(content, &export, "primary location"); err != nil {
		return nil, err
	}
	var place placeInfo
	switch {
	case export.V2 != nil:
		place = *export.V2
	case export.Legacy != nil:
		place = *export.Legacy
	case export.Public != nil:
		place = *export.Public
	default:
		if err := decodeExport(content, &place, "primary location"); err != nil {
			return nil, err
		}
	}

	parts := []string{"My primary location:"}
	md := map[string]interface{}{
		"date":              now.Format(dateLayout),
		"location_type":     "primary",
		"document_category": CategoryLocation,
	}
	for _, f := range []struct {
		label, key string
		value      flexString
	}{
		{"City", "city", place.City},
		{"Region", "region", place.Region},
		{"Country", "country", place.Country},
		{"Zip code", "", place.Zipcode},
	} {
		v := f.value.String()
		if v == "" {
			continue
		}
		parts = append(parts, f.label+": "+v)
		if f.key != "" {
			md[f.key] = v
		}
	}
	if len(parts) == 1 {
		return nil, nil
	}
	return []models.Record{{Content: strings.Join(parts, "\n"), Metadata: md}}, nil
}

type inferredCity struct {
	StringMapData map[string]struct {
		Value     flexString `json:"value"`
		Timestamp int64      `json:"timestamp"`
	} `json:"string_map_data"`
	City flexString `json:"city"`
}

// parseLocationsOfInterest yields one record per inferred city.
func parseLocationsOfInterest(content []byte, now time.Time) ([]models.Record, error) {
	var export struct {
		V2     []inferredCity `json:"inferred_city_v2"`
		Legacy []inferredCity `json:"inferred_cities"`
	}
	if err := decodeExport(content, &export, "locations of interest"); err != nil {
		return nil, err
	}
	cities := export.V2
	if len(cities) == 0 {
		cities = export.Legacy
	}

	var records []models.Record
	for _, c := range cities {
		city := c.StringMapData["City"].Value.String()
		if city == "" {
			city = c.City.String()
		}
		if city == "" {
			continue
		}
		date := now
		if ts := c.StringMapData["Start Time"].Timestamp; ts > 0 {
			date = unixLocal(ts)
		}
		records = append(records, models.Record{
			Content: "Location of interest: " + city,
			Metadata: map[string]interface{}{
				"date":              date.Format(dateLayout),
				"location_type":     "interest",
				"document_category": CategoryLocation,
				"city":              city,
			},
		})
	}
	return records, nil
}

type searchEntry struct {
	Timestamp   int64 `json:"timestamp"`
	Attachments []struct {
		Data []struct {
			Text flexString `json:"text"`
		} `json:"data"`
	} `json:"attachments"`
	Data []struct {
		Text flexString `json:"text"`
	} `json:"data"`
	Title flexString `json:"title"`
}

// text returns the searched phrase or visited name of an entry.
func (e searchEntry) text() string {
	for _, a := range e.Attachments {
		for _, d := range a.Data {
			if t := strings.Trim(d.Text.String(), `"`); t != "" {
				return t
			}
		}
	}
	for _, d := range e.Data {
		if t := d.Text.String(); t != "" {
			return t
		}
	}
	if title := e.Title.String(); title != "" {
		parts := strings.Split(title, ":")
		return strings.TrimSpace(parts[len(parts)-1])
	}
	return ""
}

// visit reports whether the entry is a profile visit rather than a search.
func (e searchEntry) visit() bool {
	title := e.Title.String()
	return strings.Contains(title, "Odwiedzono") || strings.Contains(title, "Visited")
}

// parseSearchHistory groups searches and profile visits into one record per
// local day.
func parseSearchHistory(content []byte, now time.Time) ([]models.Record, error) {
	var export struct {
		V2     []searchEntry `json:"searches_v2"`
		Legacy []searchEntry `json:"searches"`
	}
	if err := decodeExport(content, &export, "search history"); err != nil {
		return nil, err
	}
	entries := export.V2
	if len(entries) == 0 {
		entries = export.Legacy
	}

	type dayActivity struct {
		first    time.Time
		searches []string
		visits   []string
		count    [2]int
	}
	var days []string
	byDay := map[string]*dayActivity{}
	for _, e := range entries {
		text := e.text()
		if text == "" {
			continue
		}
		at := now
		if e.Timestamp > 0 {
			at = unixLocal(e.Timestamp)
		}
		day := at.Format("2006-01-02")
		act, ok := byDay[day]
		if !ok {
			act = &dayActivity{first: at}
			byDay[day] = act
			days = append(days, day)
		}
		if at.Before(act.first) {
			act.first = at
		}
		if e.visit() {
			act.visits = firstUnique(act.visits, text)
			act.count[1]++
		} else {
			act.searches = firstUnique(act.searches, text)
			act.count[0]++
		}
	}

	records := make([]models.Record, 0, len(days))
	for _, day := range days {
		act := byDay[day]
		parts := []string{"Facebook activity for " + day + ":"}
		if len(act.searches) > 0 {
			parts = append(parts, "Searches: "+strings.Join(firstN(act.searches, maxActivityItems), ", "))
		}
		if len(act.visits) > 0 {
			parts = append(parts, "Profile visits: "+strings.Join(firstN(act.visits, maxActivityItems), ", "))
		}
		records = append(records, models.Record{
			Content: strings.Join(parts, "\n"),
			Metadata: map[string]interface{}{
				"date":              act.first.Format(dateLayout),
				"document_category": CategorySearchHistory,
				"search_count":      act.count[0],
				"visit_count":       act.count[1],
				"period":            day,
			},
		})
	}
	return records, nil
}

// interestCategories buckets ad topics by keyword; the first matching
// category wins and unmatched topics go to Other.
var interestCategories = []struct {
	name     string
	keywords []string
}{
	{"Technology", []string{"tech", "software", "app", "computer", "digital", "ai", "data",
		"programming", "developer", "android", "ios", "apple", "google",
		"microsoft", "cloud", "startup", "saas", "api", "code", "geforce",
		"nvidia", "intel", "processor", "hardware", "electronics"}},
	{"Business & Finance", []string{"business", "finance", "invest", "trading", "forex", "stock",
		"entrepreneur", "marketing", "management", "consulting", "bank",
		"money", "economic", "real estate", "etoro", "fxpro"}},
	{"Entertainment", []string{"game", "gaming", "movie", "film", "music", "video", "stream",
		"netflix", "youtube", "spotify", "entertainment", "tv", "show",
		"cartoon", "anime", "comic"}},
	{"Food & Drink", []string{"food", "restaurant", "cooking", "recipe", "cuisine", "beer",
		"wine", "coffee", "tea", "catering", "gastro", "chef", "drink",
		"brewery", "bar"}},
	{"Sports & Fitness", []string{"sport", "fitness", "gym", "running", "cycling", "football",
		"basketball", "tennis", "swimming", "yoga", "workout", "health"}},
	{"Travel", []string{"travel", "vacation", "hotel", "flight", "tourism", "adventure",
		"destination", "trip", "booking"}},
	{"Shopping", []string{"shop", "retail", "ecommerce", "amazon", "ebay", "fashion",
		"clothes", "buy", "sale", "discount", "black friday"}},
	{"Science & Education", []string{"science", "education", "research", "university", "physics",
		"chemistry", "biology", "math", "engineering", "academic",
		"history", "philosophy"}},
}

const otherInterests = "Other"

// parseAdsInterests summarizes the advertising topics into one record.
func parseAdsInterests(content []byte, now time.Time) ([]models.Record, error) {
	var export struct {
		V2     []flexString `json:"topics_v2"`
		Legacy []flexString `json:"topics"`
	}
	if err := decodeExport(content, &export, "ads interests"); err != nil {
		return nil, err
	}
	topics := export.V2
	if len(topics) == 0 {
		topics = export.Legacy
	}

	buckets := map[string][]string{}
	total := 0
	for _, raw := range topics {
		topic := raw.String()
		if i := strings.Index(topic, "("); i >= 0 {
			topic = strings.TrimSpace(topic[:i])
		}
		if topic == "" {
			continue
		}
		total++
		buckets[interestCategory(topic)] = append(buckets[interestCategory(topic)], topic)
	}
	if total == 0 {
		return nil, nil
	}

	parts := []string{"My interests (based on Facebook activity):\n"}
	var names []string
	order := make([]string, 0, len(interestCategories)+1)
	for _, c := range interestCategories {
		order = append(order, c.name)
	}
	for _, name := range append(order, otherInterests) {
		items := buckets[name]
		if len(items) == 0 {
			continue
		}
		names = append(names, name)
		parts = append(parts, name+": "+strings.Join(firstN(items, maxInterestsPerCat), ", "))
	}
	parts = append(parts, fmt.Sprintf("\nTotal interest topics: %d", total))

	return []models.Record{{
		Content: strings.Join(parts, "\n"),
		Metadata: map[string]interface{}{
			"date":              now.Format(dateLayout),
			"document_category": CategoryInterests,
			"topic_count":       total,
			"categories":        strings.Join(names, ", "),
		},
	}}, nil
}

func interestCategory(topic string) string {
	lower := strings.ToLower(topic)
	for _, c := range interestCategories {
		for _, kw := range c.keywords {
			if strings.Contains(lower, kw) {
				return c.name
			}
		}
	}
	return otherInterests
}
