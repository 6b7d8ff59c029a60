package model

// SampleYAML is the model written by `entityql init` and used throughout the tests.
const SampleYAML = `entities:
  OrgUnit:
    attributes:
      initials: String
      name: String
    relations:
      parentUnit: { target: OrgUnit, kind: belongsTo, foreignKey: parentUnitId }
      members:    { target: Person, kind: hasMany, foreignKey: orgUnitId }
      director:   { target: Person, kind: hasOne, foreignKey: directorId }
  Person:
    attributes:
      initials: String
      name: String
      role: Role
      active: Boolean
    relations:
      supervisor: { target: Person, kind: belongsTo, foreignKey: personId }
      belongsTo:  { target: OrgUnit, kind: belongsTo, foreignKey: orgUnitId }
  Project:
    attributes:
      name: String!
      budget: Float
      headcount: Int
      meta: JSON
      due: DateTime
      ownerId: String
    relations:
      staff: { target: Person, kind: belongsToMany, through: ProjectStaff, foreignKey: projectId, otherKey: personId }
enums:
  Role: [ ENGINEER, MANAGER, DIRECTOR ]
`

// Sample returns the parsed sample model.
func Sample() *Model {
	m, err := Parse([]byte(SampleYAML))
	if err != nil {
		panic(err)
	}
	return m
}
