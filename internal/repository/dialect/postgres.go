package dialect

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/eventrelay/internal/model"
)

type postgresLookup struct{}

// The blob is expanded twice: once to match the filter pair, once to pick the
// date pair out of the same blob.
const postgresRunningJobParameterQuery = `
	SELECT dp.elem ->> 'parameterValue'
	FROM batch_job_instance bji
	JOIN batch_job_execution bje ON bje.job_instance_id = bji.job_instance_id
	JOIN batch_job_execution_params bjep ON bjep.job_execution_id = bje.job_execution_id
	JOIN batch_custom_job_parameters cjp ON cjp.id = CAST(bjep.parameter_value AS BIGINT)
	CROSS JOIN LATERAL json_array_elements(CAST(cjp.parameter_json AS JSON)) AS fp(elem)
	CROSS JOIN LATERAL json_array_elements(CAST(cjp.parameter_json AS JSON)) AS dp(elem)
	WHERE bji.job_name = $1
	AND bjep.parameter_name = $2
	AND bje.status IN ('STARTED', 'STARTING')
	AND bje.job_execution_id = (
		SELECT MAX(latest.job_execution_id)
		FROM batch_job_execution latest
		WHERE latest.job_instance_id = bji.job_instance_id
	)
	AND NOT EXISTS (
		SELECT 1 FROM batch_job_execution done
		WHERE done.job_instance_id = bji.job_instance_id
		AND done.status = 'COMPLETED'
	)
	AND fp.elem ->> 'parameterName' = $3
	AND fp.elem ->> 'parameterValue' = $4
	AND dp.elem ->> 'parameterName' = $5
	ORDER BY bje.job_execution_id DESC
	LIMIT 1
`

func (postgresLookup) LookupParameterValue(ctx context.Context, q sqlx.QueryerContext, query model.RunningJobQuery) (*string, error) {
	query = query.WithDefaults()
	return scanOptional(ctx, q, postgresRunningJobParameterQuery,
		query.JobName,
		query.JobParamKeyName,
		query.FilterParamName,
		query.FilterParamValue,
		query.DateParamName,
	)
}
