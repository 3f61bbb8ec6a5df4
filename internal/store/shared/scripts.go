package shared

// claimLua implements ClaimNextJobForWorker as a single atomic script.
//
// KEYS[1] = claimable zset
// KEYS[2] = inflight zset
// KEYS[3] = job key prefix
// ARGV[1] = now (unix ms)
// ARGV[2] = worker id
// ARGV[3] = now (RFC3339Nano string, stamped onto started_at/last_updated_at)
//
// Returns the encoded, mutated job, or false if nothing is eligible.
const claimLua = `
local claimable = KEYS[1]
local inflight = KEYS[2]
local jobPrefix = KEYS[3]
local now = tonumber(ARGV[1])
local workerId = ARGV[2]
local nowStr = ARGV[3]

local ids = redis.call('ZRANGEBYSCORE', claimable, '-inf', now, 'LIMIT', 0, 1)
if #ids == 0 then
  return false
end
local id = ids[1]
local raw = redis.call('GET', jobPrefix .. id)
if not raw then
  redis.call('ZREM', claimable, id)
  return false
end

local j = cjson.decode(raw)
if j.worker_id ~= nil and j.worker_id ~= cjson.null then
  redis.call('ZREM', claimable, id)
  return false
end
if j.status ~= 'queued' and j.status ~= 'scheduled' then
  redis.call('ZREM', claimable, id)
  return false
end

j.status = 'in_progress'
j.worker_id = workerId
j.retry_delay_until = nil
if j.started_at == nil or j.started_at == cjson.null then
  j.started_at = nowStr
end
j.last_updated_at = nowStr

local encoded = cjson.encode(j)
redis.call('SET', jobPrefix .. id, encoded)
redis.call('ZREM', claimable, id)
redis.call('ZADD', inflight, now, id)
return encoded
`

// recoverLua implements RecoverStuckJobs as a single atomic script over the
// full inflight set: every member whose score (startedAt ms) is older than
// the threshold is either requeued (retry_count < maxRetries) or marked
// Failed (retry_count would exceed maxRetries), mirroring spec.md §4.5's
// recovery loop semantics without a separate read-then-write round trip per
// job.
//
// KEYS[1] = claimable zset
// KEYS[2] = inflight zset
// KEYS[3] = job key prefix
// ARGV[1] = threshold (unix ms) — jobs started before this are stuck
// ARGV[2] = maxRetries
// ARGV[3] = now (RFC3339Nano string)
//
// A requeued job is re-added to claimable at its real CreatedAt score (read
// from the jobPrefix..id..':created_ms' companion key written by CreateJob),
// not 0 — otherwise every recovered job would sort ahead of all genuinely
// older eligible jobs forever, breaking the oldest-createdAt tie-break.
//
// Returns the number of jobs recovered (requeued or failed).
const recoverLua = `
local claimable = KEYS[1]
local inflight = KEYS[2]
local jobPrefix = KEYS[3]
local threshold = tonumber(ARGV[1])
local maxRetries = tonumber(ARGV[2])
local nowStr = ARGV[3]

local stuck = redis.call('ZRANGEBYSCORE', inflight, '-inf', threshold)
local recovered = 0

for _, id in ipairs(stuck) do
  local raw = redis.call('GET', jobPrefix .. id)
  redis.call('ZREM', inflight, id)
  if raw then
    local j = cjson.decode(raw)
    if j.status == 'in_progress' then
      j.worker_id = cjson.null
      j.last_updated_at = nowStr
      if (j.retry_count or 0) + 1 > maxRetries then
        j.status = 'failed'
        j.completed_at = nowStr
        j.error = { code = 'RECOVERY_EXHAUSTED', message = 'stuck job exceeded retry budget during recovery' }
      else
        j.retry_count = (j.retry_count or 0) + 1
        j.status = 'queued'
        local createdMs = tonumber(redis.call('GET', jobPrefix .. id .. ':created_ms'))
        redis.call('ZADD', claimable, createdMs or 0, id)
      end
      redis.call('SET', jobPrefix .. id, cjson.encode(j))
      recovered = recovered + 1
    end
  end
end

return recovered
`
