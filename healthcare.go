package rules

// HealthcareRuleset builds the platform's static rule table: user profiles,
// appointments, caregiver record shares, conversations with nested messages,
// and globally readable config documents. Message predicates depend on the
// parent conversation's participant list, resolved at decision time so a
// removed participant loses access immediately.
func HealthcareRuleset() *Ruleset {
	userSchema := NewSchemaBuilder().
		Required("id", TypeString).
		Nullable("email", TypeString).
		Nullable("phone", TypeString).
		Required("name", TypeString).
		Enum("role", true, "patient", "provider", "caregiver", "admin").
		Nullable("profileImageUrl", TypeString).
		Nullable("state", TypeString).
		Nullable("lga", TypeString).
		Nullable("address", TypeString).
		Nullable("latitude", TypeNumber).
		Nullable("longitude", TypeNumber).
		Required("createdAt", TypeTimestamp).
		Required("isVerified", TypeBool).
		Nullable("medicalHistory", TypeString).
		Build()

	appointmentSchema := NewSchemaBuilder().
		Required("id", TypeString).
		Required("patientId", TypeString).
		Required("providerId", TypeString).
		Optional("providerName", TypeString).
		Optional("providerType", TypeString).
		Required("dateTime", TypeTimestamp).
		Enum("status", true, "pending", "confirmed", "cancelled", "completed").
		Nullable("notes", TypeString).
		Nullable("symptoms", TypeString).
		Required("createdAt", TypeTimestamp).
		Optional("isEmergency", TypeBool).
		Optional("appointmentType", TypeString).
		Build()

	shareSchema := NewSchemaBuilder().
		Required("recordId", TypeString).
		Required("patientId", TypeString).
		Required("caregiverId", TypeString).
		Required("fileUrl", TypeString).
		Required("title", TypeString).
		Required("sharedAt", TypeTimestamp).
		Build()

	conversationSchema := NewSchemaBuilder().
		Required("participants", TypeStringArray).
		Nullable("lastMessage", TypeString).
		Nullable("lastMessageAt", TypeTimestamp).
		Build()

	messageSchema := NewSchemaBuilder().
		Required("id", TypeString).
		Required("senderId", TypeString).
		Required("receiverId", TypeString).
		Nullable("text", TypeString).
		Nullable("attachmentUrl", TypeString).
		Nullable("attachmentName", TypeString).
		Nullable("attachmentType", TypeString).
		Nullable("sharedRecordId", TypeString).
		Required("createdAt", TypeTimestamp).
		Build()

	ownProfile := All(Auth(), FieldEq("principal.id", "path.userId"))
	appointmentParty := All(Auth(), Any(
		FieldEq("principal.id", "existing.patientId"),
		FieldEq("principal.id", "existing.providerId"),
	))
	shareParty := All(Auth(), Any(
		FieldEq("principal.id", "existing.patientId"),
		FieldEq("principal.id", "existing.caregiverId"),
	))
	conversationMember := All(Auth(), Member("principal.id", "existing.participants"))
	messageMember := Member("principal.id", "refs.conversation.participants")

	rs, err := NewRuleset(
		NewRule("users/{userId}").
			Create(All(Auth(), FieldEq("principal.id", "path.userId"), FieldEq("incoming.id", "path.userId"))).
			ReadList(Auth()).
			Update(ownProfile).
			Delete(ownProfile).
			Schema(userSchema).
			Build(),

		NewRule("appointments/{appointmentId}").
			Create(All(Auth(), FieldEq("principal.id", "incoming.patientId"))).
			ReadList(appointmentParty).
			Update(appointmentParty).
			Delete(appointmentParty).
			Schema(appointmentSchema).
			Build(),

		// Shares are create-only: revocation is not an observed operation on
		// this collection, so update and delete stay undeclared (always deny).
		NewRule("health_record_shares/{shareId}").
			Create(All(Auth(), FieldEq("principal.id", "incoming.patientId"))).
			ReadList(shareParty).
			Schema(shareSchema).
			Build(),

		NewRule("conversations/{conversationId}").
			Create(All(Auth(), Member("principal.id", "incoming.participants"))).
			ReadList(conversationMember).
			Update(conversationMember).
			Delete(conversationMember).
			Schema(conversationSchema).
			Build(),

		// Messages are immutable once sent: no update or delete predicate.
		NewRule("conversations/{conversationId}/messages/{messageId}").
			Create(All(messageMember, FieldEq("principal.id", "incoming.senderId"))).
			ReadList(messageMember).
			Schema(messageSchema).
			DependsOn("conversation", "conversations", "conversationId").
			Build(),

		// Config documents are written out of band by admins and readable by
		// anyone, including unauthenticated clients fetching feature flags.
		NewRule("config/{configId}").
			ReadList(&TrueExpr{}).
			Update(HasRole(RoleAdmin)).
			Delete(HasRole(RoleAdmin)).
			Build(),
	)
	if err != nil {
		// The table is static; a construction failure is a programming error.
		panic(err)
	}
	return rs
}
