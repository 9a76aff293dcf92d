package radiusd

import (
	"crypto/sha256"
	"crypto/subtle"
	"net"
	"strconv"

	"github.com/feedad/kilusi-bill-sub000/internal/domain"
	"go.uber.org/zap"
	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
	"layeh.com/radius/rfc2869"
)

const (
	// rejectReason is deliberately identical for unknown users and wrong
	// passwords so a rejection never discloses account existence
	rejectReason  = "invalid account or password"
	acceptMessage = "authentication accepted"
)

// Mikrotik vendor id for the Mikrotik-Rate-Limit VSA
const mikrotikVendorId = 14988
const mikrotikRateLimitType = 8

func (s *RadiusService) handleAuth(w radius.ResponseWriter, r *radius.Request) {
	s.stats.incrTotal()

	srcIP := remoteIP(r.RemoteAddr)
	nas := s.LookupNas(srcIP)
	if nas == nil {
		// SecretSource already counts and drops these; reaching here means the
		// allow-list changed between decode and dispatch. Drop all the same.
		return
	}

	username := rfc2865.UserName_GetString(r.Packet)
	password := rfc2865.UserPassword_GetString(r.Packet)
	if username == "" || password == "" {
		s.reject(w, r, username, nas, "missing username or password attribute")
		return
	}

	check, err := s.authRepo.GetCheck(r.Context(), username)
	if err != nil {
		// store down: authentication fails closed
		s.stats.incrErrors()
		zap.L().Error("radius auth store lookup failed",
			zap.String("namespace", "radius"),
			zap.String("username", username),
			zap.Error(err),
		)
		s.reject(w, r, username, nas, rejectReason)
		return
	}

	if check == nil || !passwordEqual(check.Value, password) {
		zap.L().Debug("radius credentials rejected",
			zap.String("namespace", "radius"),
			zap.String("username", username),
			zap.Error(ErrAuthFailure),
		)
		s.reject(w, r, username, nas, rejectReason)
		return
	}

	s.accept(w, r, username, nas)
}

// passwordEqual compares digests so the comparison shape does not depend on
// either value's length or content
func passwordEqual(stored, presented string) bool {
	a := sha256.Sum256([]byte(stored))
	b := sha256.Sum256([]byte(presented))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

func (s *RadiusService) accept(w radius.ResponseWriter, r *radius.Request, username string, nas *domain.NetNas) {
	resp := r.Response(radius.CodeAccessAccept)

	attrs, err := s.authRepo.EffectiveReplyAttributes(r.Context(), username)
	if err != nil {
		// attribute sync is non-critical; accept with the confirmation message only
		zap.L().Warn("radius reply attribute lookup failed",
			zap.String("namespace", "radius"),
			zap.String("username", username),
			zap.Error(err),
		)
		attrs = nil
	}

	var warnings []string
	for _, attr := range attrs {
		if err := applyReplyAttribute(resp, attr.Attribute, attr.Value); err != nil {
			warnings = append(warnings, attr.Attribute+": "+err.Error())
		}
	}
	if len(warnings) > 0 {
		zap.L().Warn("radius reply attributes skipped",
			zap.String("namespace", "radius"),
			zap.String("username", username),
			zap.Strings("warnings", warnings),
		)
	}

	_ = rfc2865.ReplyMessage_SetString(resp, acceptMessage)

	if err := w.Write(resp); err != nil {
		s.stats.incrErrors()
		zap.L().Error("radius accept send failed",
			zap.String("namespace", "radius"),
			zap.String("username", username),
			zap.Error(err),
		)
		return
	}

	s.stats.incrAccept()
	zap.L().Info("radius access accept",
		zap.String("namespace", "radius"),
		zap.String("username", username),
		zap.String("nas", nas.Ipaddr),
	)
}

func (s *RadiusService) reject(w radius.ResponseWriter, r *radius.Request, username string, nas *domain.NetNas, reason string) {
	resp := r.Response(radius.CodeAccessReject)
	_ = rfc2865.ReplyMessage_SetString(resp, reason)

	if err := w.Write(resp); err != nil {
		s.stats.incrErrors()
		zap.L().Error("radius reject send failed",
			zap.String("namespace", "radius"),
			zap.Error(err),
		)
		return
	}

	s.stats.incrReject()
	zap.L().Info("radius access reject",
		zap.String("namespace", "radius"),
		zap.String("username", username),
		zap.String("nas", nas.Ipaddr),
		zap.String("reason", reason),
	)
}

// applyReplyAttribute maps a stored (attribute, value) row onto the response
// packet. Unknown attribute names are reported back as warnings rather than
// failing the whole accept.
func applyReplyAttribute(p *radius.Packet, attribute, value string) error {
	switch attribute {
	case "Framed-IP-Address":
		ip := net.ParseIP(value)
		if ip == nil {
			return errInvalidValue(value)
		}
		return rfc2865.FramedIPAddress_Set(p, ip)
	case "Framed-IP-Netmask":
		ip := net.ParseIP(value)
		if ip == nil {
			return errInvalidValue(value)
		}
		return rfc2865.FramedIPNetmask_Set(p, ip)
	case "Framed-Pool":
		return rfc2869.FramedPool_SetString(p, value)
	case "Session-Timeout":
		sec, err := strconv.Atoi(value)
		if err != nil {
			return errInvalidValue(value)
		}
		return rfc2865.SessionTimeout_Set(p, rfc2865.SessionTimeout(sec))
	case "Idle-Timeout":
		sec, err := strconv.Atoi(value)
		if err != nil {
			return errInvalidValue(value)
		}
		return rfc2865.IdleTimeout_Set(p, rfc2865.IdleTimeout(sec))
	case "Reply-Message":
		return rfc2865.ReplyMessage_SetString(p, value)
	case "Mikrotik-Rate-Limit":
		return addMikrotikRateLimit(p, value)
	default:
		return errUnknownAttribute(attribute)
	}
}

// addMikrotikRateLimit encodes the rate-limit VSA by hand: 4-byte vendor id
// followed by a single vendor attribute (type, length, value)
func addMikrotikRateLimit(p *radius.Packet, value string) error {
	if len(value) == 0 || len(value) > 247 {
		return errInvalidValue(value)
	}
	vsa := make([]byte, 0, 6+len(value))
	vsa = append(vsa,
		byte(mikrotikVendorId>>24&0xff), byte(mikrotikVendorId>>16&0xff),
		byte(mikrotikVendorId>>8&0xff), byte(mikrotikVendorId&0xff))
	vsa = append(vsa, mikrotikRateLimitType, byte(2+len(value)))
	vsa = append(vsa, value...)
	p.Add(rfc2865.VendorSpecific_Type, radius.Attribute(vsa))
	return nil
}

type attrError string

func (e attrError) Error() string { return string(e) }

func errInvalidValue(v string) error     { return attrError("invalid value " + strconv.Quote(v)) }
func errUnknownAttribute(a string) error { return attrError("unsupported attribute " + a) }
