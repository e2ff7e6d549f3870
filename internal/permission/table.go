package permission

import "memberconsole/internal/model"

// roleTable is the static role → permission mapping. Each row is explicit
// and exhaustive: no role inherits from another.
var roleTable = [...]Set{
	model.RoleUnknown: nil,
	model.RoleSuperAdmin: newSet(
		model.PermViewAllChapters,
		model.PermViewOwnChapter,
		model.PermCreateChapter,
		model.PermEditChapter,
		model.PermDeleteChapter,
		model.PermViewRequests,
		model.PermApproveRejectRequest,
		model.PermSuspendMembers,
		model.PermManageVerification,
		model.PermManageEvents,
		model.PermManageJobs,
		model.PermManageMentorships,
		model.PermManageFunding,
		model.PermManagePosts,
		model.PermViewReports,
		model.PermExportReports,
		model.PermManageStaff,
		model.PermManageAdmins,
		model.PermViewUsers,
	),
	model.RoleChapterAdmin: newSet(
		model.PermViewOwnChapter,
		model.PermEditChapter,
		model.PermViewRequests,
		model.PermApproveRejectRequest,
		model.PermSuspendMembers,
		model.PermManageEvents,
		model.PermManageJobs,
		model.PermManageMentorships,
		model.PermManagePosts,
		model.PermViewReports,
		model.PermManageStaff,
		model.PermViewUsers,
	),
	model.RoleHQStaff: newSet(
		model.PermViewAllChapters,
		model.PermViewRequests,
		model.PermManageVerification,
		model.PermManageEvents,
		model.PermManageJobs,
		model.PermManageFunding,
		model.PermManagePosts,
		model.PermViewReports,
		model.PermExportReports,
		model.PermViewUsers,
	),
	model.RoleChapterStaff: newSet(
		model.PermViewOwnChapter,
		model.PermViewRequests,
		model.PermManageEvents,
		model.PermManagePosts,
		model.PermViewUsers,
	),
	model.RoleMember: nil,
	model.RoleMentor: nil,
}

// Adding a role to model without a row here fails to compile.
var _ = [1]struct{}{}[len(roleTable)-int(model.RoleCount)]
