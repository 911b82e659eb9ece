package model

// CustomJobParameterKey is the job parameter name whose value is the id of a
// CustomJobParameter row.
const CustomJobParameterKey = "CUSTOM_JOB_PARAMETER_ID"

// Well-known custom parameter names written by the scheduler.
const (
	JobParamTenantID     = "tenantId"
	JobParamBusinessDate = "businessDate"
)

// JobParameter is one name/value pair inside a custom parameter blob.
type JobParameter struct {
	ParameterName  string `json:"parameterName"`
	ParameterValue string `json:"parameterValue"`
}

// CustomJobParameter stores an ordered list of JobParameter as an opaque JSON blob.
type CustomJobParameter struct {
	ID            int64  `db:"id" json:"id"`
	ParameterJSON string `db:"parameter_json" json:"parameter_json"`
}

// JobExecutionParameter is a row of the fixed-shape job parameter table.
type JobExecutionParameter struct {
	JobExecutionID int64  `db:"job_execution_id" json:"job_execution_id"`
	ParameterName  string `db:"parameter_name" json:"parameter_name"`
	ParameterValue string `db:"parameter_value" json:"parameter_value"`
}

// RunningJobQuery selects a parameter value from the custom parameters of a job
// instance that is still running and never completed.
type RunningJobQuery struct {
	JobName          string `form:"-"`
	JobParamKeyName  string `form:"jobParamKeyName"`
	FilterParamName  string `form:"filterParam" binding:"required"`
	FilterParamValue string `form:"filterValue" binding:"required"`
	DateParamName    string `form:"dateParam"`
}

// WithDefaults fills the key and date parameter names used by the scheduler.
func (q RunningJobQuery) WithDefaults() RunningJobQuery {
	if q.JobParamKeyName == "" {
		q.JobParamKeyName = CustomJobParameterKey
	}
	if q.DateParamName == "" {
		q.DateParamName = JobParamBusinessDate
	}
	return q
}

// BusinessDateLayout is how business dates are stored inside parameter blobs.
const BusinessDateLayout = "2006-01-02"
