package model

import "strings"

// Permission is a capability tag gating one console action.
type Permission string

const (
	PermViewAllChapters      Permission = "VIEW_ALL_CHAPTERS"
	PermViewOwnChapter       Permission = "VIEW_OWN_CHAPTER"
	PermCreateChapter        Permission = "CREATE_CHAPTER"
	PermEditChapter          Permission = "EDIT_CHAPTER"
	PermDeleteChapter        Permission = "DELETE_CHAPTER"
	PermViewRequests         Permission = "VIEW_REQUESTS"
	PermApproveRejectRequest Permission = "APPROVE_REJECT_REQUESTS"
	PermSuspendMembers       Permission = "SUSPEND_MEMBERS"
	PermManageVerification   Permission = "MANAGE_VERIFICATION"
	PermManageEvents         Permission = "MANAGE_EVENTS"
	PermManageJobs           Permission = "MANAGE_JOBS"
	PermManageMentorships    Permission = "MANAGE_MENTORSHIPS"
	PermManageFunding        Permission = "MANAGE_FUNDING"
	PermManagePosts          Permission = "MANAGE_POSTS"
	PermViewReports          Permission = "VIEW_REPORTS"
	PermExportReports        Permission = "EXPORT_REPORTS"
	PermManageStaff          Permission = "MANAGE_STAFF"
	PermManageAdmins         Permission = "MANAGE_ADMINS"
	PermViewUsers            Permission = "VIEW_USERS"
)

var allPermissions = []Permission{
	PermViewAllChapters,
	PermViewOwnChapter,
	PermCreateChapter,
	PermEditChapter,
	PermDeleteChapter,
	PermViewRequests,
	PermApproveRejectRequest,
	PermSuspendMembers,
	PermManageVerification,
	PermManageEvents,
	PermManageJobs,
	PermManageMentorships,
	PermManageFunding,
	PermManagePosts,
	PermViewReports,
	PermExportReports,
	PermManageStaff,
	PermManageAdmins,
	PermViewUsers,
}

// Permissions returns the full closed set in declaration order.
func Permissions() []Permission {
	out := make([]Permission, len(allPermissions))
	copy(out, allPermissions)
	return out
}

// ParsePermission returns the permission named by s and whether it exists.
func ParsePermission(s string) (Permission, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, p := range allPermissions {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

func (p Permission) String() string {
	return string(p)
}
