package carddav

import (
	"bytes"
	"encoding/xml"
	"strings"
)

const (
	nsDAV     = "DAV:"
	nsCardDAV = "urn:ietf:params:xml:ns:carddav"
)

type multistatus struct {
	XMLName   xml.Name      `xml:"DAV: multistatus"`
	Responses []davResponse `xml:"DAV: response"`
}

type davResponse struct {
	Href      string        `xml:"DAV: href"`
	Status    string        `xml:"DAV: status"`
	Propstats []davPropstat `xml:"DAV: propstat"`
}

type davPropstat struct {
	Status string  `xml:"DAV: status"`
	Prop   davProp `xml:"DAV: prop"`
}

type davProp struct {
	ResourceType         *resourceType `xml:"DAV: resourcetype"`
	DisplayName          string        `xml:"DAV: displayname"`
	GetETag              string        `xml:"DAV: getetag"`
	CurrentUserPrincipal *hrefProp     `xml:"DAV: current-user-principal"`
	AddressBookHomeSet   *hrefProp     `xml:"urn:ietf:params:xml:ns:carddav addressbook-home-set"`
	AddressData          *addressData  `xml:"urn:ietf:params:xml:ns:carddav address-data"`
}

type resourceType struct {
	Collection  *struct{} `xml:"DAV: collection"`
	AddressBook *struct{} `xml:"urn:ietf:params:xml:ns:carddav addressbook"`
}

type hrefProp struct {
	Href string `xml:"DAV: href"`
}

type addressData struct {
	Data string `xml:",chardata"`
}

// props merges every propstat answered with 2xx. Missing status lines count
// as success; some servers omit them for single-prop answers.
func (r davResponse) props() davProp {
	var out davProp
	for _, ps := range r.Propstats {
		if ps.Status != "" && !statusOK(ps.Status) {
			continue
		}
		p := ps.Prop
		if p.ResourceType != nil {
			out.ResourceType = p.ResourceType
		}
		if p.DisplayName != "" {
			out.DisplayName = p.DisplayName
		}
		if p.GetETag != "" {
			out.GetETag = p.GetETag
		}
		if p.CurrentUserPrincipal != nil {
			out.CurrentUserPrincipal = p.CurrentUserPrincipal
		}
		if p.AddressBookHomeSet != nil {
			out.AddressBookHomeSet = p.AddressBookHomeSet
		}
		if p.AddressData != nil {
			out.AddressData = p.AddressData
		}
	}
	return out
}

// statusOK parses an "HTTP/1.1 200 OK" status line.
func statusOK(line string) bool {
	fields := strings.Fields(line)
	return len(fields) >= 2 && strings.HasPrefix(fields[1], "2")
}

func (p davProp) isAddressBook() bool {
	return p.ResourceType != nil && p.ResourceType.AddressBook != nil
}

func parseMultistatus(body []byte) (*multistatus, error) {
	var ms multistatus
	if err := xml.Unmarshal(body, &ms); err != nil {
		return nil, err
	}
	return &ms, nil
}

const propfindDiscovery = `<?xml version="1.0" encoding="utf-8"?>
<D:propfind xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:carddav">
  <D:prop>
    <D:resourcetype/>
    <D:displayname/>
    <D:current-user-principal/>
    <C:addressbook-home-set/>
  </D:prop>
</D:propfind>`

const propfindCollections = `<?xml version="1.0" encoding="utf-8"?>
<D:propfind xmlns:D="DAV:">
  <D:prop>
    <D:resourcetype/>
    <D:displayname/>
  </D:prop>
</D:propfind>`

const propfindETag = `<?xml version="1.0" encoding="utf-8"?>
<D:propfind xmlns:D="DAV:">
  <D:prop>
    <D:getetag/>
  </D:prop>
</D:propfind>`

const reportAll = `<?xml version="1.0" encoding="utf-8"?>
<C:addressbook-query xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:carddav">
  <D:prop>
    <D:getetag/>
    <C:address-data/>
  </D:prop>
</C:addressbook-query>`

func reportByUID(uid string) string {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>
<C:addressbook-query xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:carddav">
  <D:prop>
    <D:getetag/>
    <C:address-data/>
  </D:prop>
  <C:filter>
    <C:prop-filter name="UID">
      <C:text-match collation="i;octet" match-type="equals">`)
	xml.EscapeText(&b, []byte(uid))
	b.WriteString(`</C:text-match>
    </C:prop-filter>
  </C:filter>
</C:addressbook-query>`)
	return b.String()
}

func reportMultiget(hrefs []string) string {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>
<C:addressbook-multiget xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:carddav">
  <D:prop>
    <D:getetag/>
    <C:address-data/>
  </D:prop>
`)
	for _, href := range hrefs {
		b.WriteString("  <D:href>")
		xml.EscapeText(&b, []byte(href))
		b.WriteString("</D:href>\n")
	}
	b.WriteString(`</C:addressbook-multiget>`)
	return b.String()
}
