package extraction

import (
	"net/mail"
	"strings"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/models"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/vocab"
)

// Envelope is the address metadata of the message a table came from.
// Addresses are raw header values ("Name <addr>").
type Envelope struct {
	From string
	To   []string
	Cc   []string
}

// identityResolver derives the client from envelope addresses. Mail sent from
// one of the organisation's own domains is an outgoing quotation, so the client
// is the first external recipient.
type identityResolver struct {
	v          *vocab.Vocabulary
	ownDomains map[string]struct{}
}

func newIdentityResolver(v *vocab.Vocabulary, ownDomains []string) *identityResolver {
	r := &identityResolver{v: v, ownDomains: make(map[string]struct{}, len(ownDomains))}
	for _, d := range ownDomains {
		r.ownDomains[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
	}
	return r
}

func (r *identityResolver) client(env Envelope) *models.ExtractedClient {
	from, ok := parseAddress(env.From)
	if !ok {
		return nil
	}
	if !r.isOwn(domainOf(from.Address)) {
		return r.toClient(from)
	}
	for _, raw := range append(append([]string(nil), env.To...), env.Cc...) {
		for _, addr := range parseAddressList(raw) {
			if !r.isOwn(domainOf(addr.Address)) {
				return r.toClient(addr)
			}
		}
	}
	return nil
}

func (r *identityResolver) isOwn(domain string) bool {
	_, ok := r.ownDomains[domain]
	return ok
}

// toClient names the client after the display name, or after the company
// domain when there is none. Webmail addresses without a display name fall
// back to the local part.
func (r *identityResolver) toClient(addr *mail.Address) *models.ExtractedClient {
	c := &models.ExtractedClient{
		Email:   strings.ToLower(addr.Address),
		Contact: strings.TrimSpace(addr.Name),
	}
	switch domain := domainOf(addr.Address); {
	case c.Contact != "":
		c.Name = c.Contact
	case domain != "" && !r.v.IsPublicMailDomain(domain):
		label, _, _ := strings.Cut(domain, ".")
		c.Name = strings.ToUpper(strings.NewReplacer("-", " ", "_", " ").Replace(label))
	default:
		local, _, _ := strings.Cut(addr.Address, "@")
		c.Name = local
	}
	return c
}

func parseAddress(raw string) (*mail.Address, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		if !strings.Contains(raw, "@") || strings.ContainsAny(raw, " <>") {
			return nil, false
		}
		return &mail.Address{Address: raw}, true
	}
	return addr, true
}

func parseAddressList(raw string) []*mail.Address {
	list, err := mail.ParseAddressList(raw)
	if err == nil {
		return list
	}
	if addr, ok := parseAddress(raw); ok {
		return []*mail.Address{addr}
	}
	return nil
}

func domainOf(address string) string {
	at := strings.LastIndexByte(address, '@')
	if at < 0 {
		return ""
	}
	return strings.ToLower(address[at+1:])
}
