package radiusd

import (
	"crypto/sha1"
	"encoding/hex"
	"time"

	"github.com/feedad/kilusi-bill-sub000/internal/domain"
	"github.com/feedad/kilusi-bill-sub000/pkg/common"
	"github.com/feedad/kilusi-bill-sub000/pkg/metrics"
	"go.uber.org/zap"
	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
	"layeh.com/radius/rfc2866"
	"layeh.com/radius/rfc2869"
)

// acctRequest carries the accounting fields extracted from one packet
type acctRequest struct {
	statusType     rfc2866.AcctStatusType
	username       string
	sessionId      string
	uniqueId       string
	framedIP       string
	callingStation string
	nasPortId      string
	sessionTime    int
	inputTotal     int64
	outputTotal    int64
	inputPackets   int
	outputPackets  int
	terminateCause string
}

func (s *RadiusService) handleAcct(w radius.ResponseWriter, r *radius.Request) {
	s.stats.incrTotal()
	s.stats.incrAccounting()

	srcIP := remoteIP(r.RemoteAddr)
	nas := s.LookupNas(srcIP)
	if nas == nil {
		return
	}

	if r.Get(rfc2866.AcctStatusType_Type) == nil {
		zap.L().Warn("accounting request missing Acct-Status-Type",
			zap.String("namespace", "radius"),
			zap.String("nas", srcIP),
		)
		s.respondAcct(w, r)
		return
	}

	req := parseAcctRequest(r, nas)

	// Persistence is best-effort: the NAS always gets an Accounting-Response,
	// otherwise it retransmits until the retry budget is exhausted.
	switch req.statusType {
	case rfc2866.AcctStatusType_Value_Start:
		s.acctStart(r, nas, req)
	case rfc2866.AcctStatusType_Value_InterimUpdate:
		s.acctUpdate(r, req)
	case rfc2866.AcctStatusType_Value_Stop:
		s.acctStop(r, req)
	default:
		zap.L().Debug("accounting status type ignored",
			zap.String("namespace", "radius"),
			zap.Int("status_type", int(req.statusType)),
		)
	}

	s.respondAcct(w, r)
}

func (s *RadiusService) respondAcct(w radius.ResponseWriter, r *radius.Request) {
	if err := w.Write(r.Response(radius.CodeAccountingResponse)); err != nil {
		s.stats.incrErrors()
		zap.L().Error("accounting response send failed",
			zap.String("namespace", "radius"),
			zap.Error(err),
		)
	}
}

func (s *RadiusService) acctStart(r *radius.Request, nas *domain.NetNas, req acctRequest) {
	sess := &domain.RadiusAccounting{
		ID:            common.UUIDint64(),
		AcctSessionId: req.sessionId,
		AcctUniqueId:  req.uniqueId,
		Username:      req.username,
		NasId:         nas.Identifier,
		NasAddr:       nas.Ipaddr,
		NasPortId:     req.nasPortId,
		FramedIpaddr:  req.framedIP,
		MacAddr:       req.callingStation,
		AcctStartTime: time.Now(),
		LastUpdate:    time.Now(),
	}
	if err := s.acctRepo.CreateSession(r.Context(), sess); err != nil {
		s.stats.incrErrors()
		zap.L().Error("accounting start persist failed",
			zap.String("namespace", "radius"),
			zap.String("username", req.username),
			zap.String("acct_session_id", req.sessionId),
			zap.Error(err),
		)
		return
	}
	metrics.IncrCounter(metrics.MetricsRadiusOnline, 1)
	zap.L().Info("radius accounting start",
		zap.String("namespace", "radius"),
		zap.String("username", req.username),
		zap.String("acct_session_id", req.sessionId),
	)
}

func (s *RadiusService) acctUpdate(r *radius.Request, req acctRequest) {
	updated, err := s.acctRepo.UpdateSession(r.Context(), req.uniqueId,
		req.sessionTime, req.inputTotal, req.outputTotal, req.inputPackets, req.outputPackets)
	if err != nil {
		s.stats.incrErrors()
		zap.L().Error("accounting interim persist failed",
			zap.String("namespace", "radius"),
			zap.String("username", req.username),
			zap.Error(err),
		)
		return
	}
	if !updated {
		// late or duplicate NAS retransmit with no open session; tolerated
		zap.L().Debug("interim-update without open session",
			zap.String("namespace", "radius"),
			zap.String("username", req.username),
			zap.String("acct_session_id", req.sessionId),
		)
	}
}

func (s *RadiusService) acctStop(r *radius.Request, req acctRequest) {
	stopped, err := s.acctRepo.StopSession(r.Context(), req.uniqueId, time.Now(),
		req.sessionTime, req.inputTotal, req.outputTotal, req.terminateCause)
	if err != nil {
		s.stats.incrErrors()
		zap.L().Error("accounting stop persist failed",
			zap.String("namespace", "radius"),
			zap.String("username", req.username),
			zap.Error(err),
		)
		return
	}
	if stopped {
		metrics.IncrCounter(metrics.MetricsRadiusOffline, 1)
	}
	zap.L().Info("radius accounting stop",
		zap.String("namespace", "radius"),
		zap.String("username", req.username),
		zap.String("acct_session_id", req.sessionId),
		zap.String("terminate_cause", req.terminateCause),
	)
}

func parseAcctRequest(r *radius.Request, nas *domain.NetNas) acctRequest {
	username := rfc2865.UserName_GetString(r.Packet)
	sessionId := rfc2866.AcctSessionID_GetString(r.Packet)

	// Fold the gigawords counters in so 32-bit octet wraps on long sessions
	// do not truncate totals
	inputOctets := int64(rfc2866.AcctInputOctets_Get(r.Packet))
	outputOctets := int64(rfc2866.AcctOutputOctets_Get(r.Packet))
	inputGigawords := int64(rfc2869.AcctInputGigawords_Get(r.Packet))
	outputGigawords := int64(rfc2869.AcctOutputGigawords_Get(r.Packet))

	framedIP := common.NA
	if ip := rfc2865.FramedIPAddress_Get(r.Packet); ip != nil {
		framedIP = ip.String()
	}

	return acctRequest{
		statusType:     rfc2866.AcctStatusType_Get(r.Packet),
		username:       username,
		sessionId:      sessionId,
		uniqueId:       AcctUniqueId(nas.Ipaddr, sessionId, username),
		framedIP:       framedIP,
		callingStation: rfc2865.CallingStationID_GetString(r.Packet),
		nasPortId:      rfc2869.NASPortID_GetString(r.Packet),
		sessionTime:    int(rfc2866.AcctSessionTime_Get(r.Packet)),
		inputTotal:     inputOctets + inputGigawords*4*1024*1024*1024,
		outputTotal:    outputOctets + outputGigawords*4*1024*1024*1024,
		inputPackets:   int(rfc2866.AcctInputPackets_Get(r.Packet)),
		outputPackets:  int(rfc2866.AcctOutputPackets_Get(r.Packet)),
		terminateCause: rfc2866.AcctTerminateCause_Get(r.Packet).String(),
	}
}

// AcctUniqueId derives the stable per-session key used to serialize writes.
// The same (nas, session id, username) triple always maps to the same key, so
// retransmitted Start/Stop records land on one row.
func AcctUniqueId(nasAddr, sessionId, username string) string {
	h := sha1.Sum([]byte(nasAddr + "/" + sessionId + "/" + username))
	return hex.EncodeToString(h[:16])
}
