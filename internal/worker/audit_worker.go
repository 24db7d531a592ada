package worker

import (
	"github.com/spec-kit/crm-admin/internal/service"
)

// StartAuditWorker registers the audit history handlers.
func StartAuditWorker(auditService *service.AuditService) {
	if auditService == nil {
		return
	}
	auditService.RegisterHandlers()
}
